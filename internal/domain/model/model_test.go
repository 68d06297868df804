package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/rsvp/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDraft(t *testing.T) {
	Convey("Given a new draft", t, func() {
		d := model.NewDraft()

		Convey("Then guests defaults to one", func() {
			So(d.Guests, ShouldEqual, 1)
		})

		Convey("When name and email are empty", func() {
			err := d.Validate()

			Convey("Then validation fails", func() {
				So(errors.Is(err, model.ErrInvalidDraft), ShouldBeTrue)
			})
		})

		Convey("When only whitespace is given for the name", func() {
			d.Name = "   "
			d.Email = "a@x.com"
			So(errors.Is(d.Validate(), model.ErrInvalidDraft), ShouldBeTrue)
		})

		Convey("When guests is outside 1..5", func() {
			d.Name = "Alex"
			d.Email = "a@x.com"
			for _, g := range []int{-1, 0, 6, 100} {
				d.Guests = g
				So(errors.Is(d.Validate(), model.ErrInvalidDraft), ShouldBeTrue)
			}
		})

		Convey("When every guest count in 1..5 is used", func() {
			d.Name = "Alex"
			d.Email = "a@x.com"
			for g := 1; g <= 5; g++ {
				d.Guests = g
				So(d.Validate(), ShouldBeNil)
			}
		})

		Convey("When packaging fields", func() {
			d = model.Draft{Name: "Alex", Email: "a@x.com", Guests: 2, FavoriteGames: "Catan", Dietary: "vegan"}
			now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
			f := d.Fields("uid-1", now)

			Convey("Then values are copied verbatim and stamped", func() {
				So(f.Name, ShouldEqual, "Alex")
				So(f.Email, ShouldEqual, "a@x.com")
				So(f.Guests, ShouldEqual, 2)
				So(f.FavoriteGames, ShouldEqual, "Catan")
				So(f.Dietary, ShouldEqual, "vegan")
				So(f.UserID, ShouldEqual, "uid-1")
				So(f.CreatedAt.Equal(now), ShouldBeTrue)
				So(f.CreatedAt.Location(), ShouldEqual, time.UTC)
			})
		})
	})
}

func TestRoster(t *testing.T) {
	Convey("Given rosters built from snapshots", t, func() {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		rec := func(id string, guests int, offset time.Duration) model.Record {
			return model.Record{ID: id, Fields: model.Fields{Name: id, Guests: guests, CreatedAt: base.Add(offset)}}
		}

		Convey("When the snapshot is empty", func() {
			r := model.NewRoster(nil)
			So(r.Len(), ShouldEqual, 0)
			So(r.TotalAttendees(), ShouldEqual, 0)
			So(model.EmptyRoster().TotalAttendees(), ShouldEqual, 0)
		})

		Convey("When records are present", func() {
			r := model.NewRoster([]model.Record{rec("a", 2, 0), rec("b", 3, time.Minute), rec("c", 1, -time.Minute)})

			Convey("Then the aggregate is the sum of guests", func() {
				So(r.TotalAttendees(), ShouldEqual, 6)
			})

			Convey("Then display order is most recent first", func() {
				ids := []string{}
				for _, x := range r.Display() {
					ids = append(ids, x.ID)
				}
				So(ids, ShouldResemble, []string{"b", "a", "c"})
			})
		})

		Convey("When two records share a timestamp", func() {
			r := model.NewRoster([]model.Record{rec("z", 1, 0), rec("y", 1, 0)})
			d := r.Display()
			So(d[0].ID, ShouldEqual, "y")
			So(d[1].ID, ShouldEqual, "z")
		})

		Convey("When the caller mutates its input slice", func() {
			in := []model.Record{rec("a", 2, 0)}
			r := model.NewRoster(in)
			in[0].Guests = 5
			So(r.TotalAttendees(), ShouldEqual, 2)
			So(r.Records()[0].Guests, ShouldEqual, 2)
		})

		Convey("When a nil roster is read", func() {
			var r *model.Roster
			So(r.Len(), ShouldEqual, 0)
			So(r.Records(), ShouldBeNil)
			So(r.Display(), ShouldBeEmpty)
		})
	})
}

func TestPartitionPath(t *testing.T) {
	if got := model.PartitionPath("default-app-id"); got != "apps/default-app-id/rsvps" {
		t.Fatalf("unexpected partition path %q", got)
	}
}
