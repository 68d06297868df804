package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rsvp/internal/domain/model"
)

func newRecord(id string, guests int, at time.Time) model.Record {
	return model.Record{ID: id, Fields: model.Fields{
		Name:      "guest " + id,
		Email:     id + "@x.com",
		Guests:    guests,
		CreatedAt: at,
		UserID:    "uid-" + id,
	}}
}

// collectionContract runs the shared behaviour every Collection must satisfy.
func collectionContract(open func() Collection) {
	ctx := context.Background()
	part := model.PartitionPath("app")
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	Convey("When a partition is empty", func() {
		c := open()
		defer c.Close()
		got, err := c.List(ctx, part)
		So(err, ShouldBeNil)
		So(got, ShouldBeEmpty)
	})

	Convey("When records are inserted", func() {
		c := open()
		defer c.Close()
		So(c.Insert(ctx, part, newRecord("a", 2, base)), ShouldBeNil)
		So(c.Insert(ctx, part, newRecord("b", 3, base.Add(time.Second))), ShouldBeNil)
		So(c.Insert(ctx, model.PartitionPath("other"), newRecord("c", 1, base)), ShouldBeNil)

		Convey("Then List returns every field of the partition only", func() {
			got, err := c.List(ctx, part)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(got[0].ID, ShouldEqual, "a")
			So(got[0].Guests, ShouldEqual, 2)
			So(got[0].Email, ShouldEqual, "a@x.com")
			So(got[0].UserID, ShouldEqual, "uid-a")
			So(got[0].CreatedAt.Equal(base), ShouldBeTrue)
			So(got[1].ID, ShouldEqual, "b")
		})

		Convey("Then a duplicate id is rejected without writing", func() {
			err := c.Insert(ctx, part, newRecord("a", 5, base))
			So(errors.Is(err, ErrAlreadyExists), ShouldBeTrue)
			got, _ := c.List(ctx, part)
			So(len(got), ShouldEqual, 2)
			So(got[0].Guests, ShouldEqual, 2)
		})
	})

	Convey("When the partition or record is malformed", func() {
		c := open()
		defer c.Close()
		So(errors.Is(c.Insert(ctx, "", newRecord("a", 1, base)), ErrInvalidPartition), ShouldBeTrue)
		So(errors.Is(c.Insert(ctx, part, model.Record{}), ErrInvalidRecord), ShouldBeTrue)
		_, err := c.List(ctx, "bad path")
		So(errors.Is(err, ErrInvalidPartition), ShouldBeTrue)
	})

	Convey("When many writers insert concurrently", func() {
		c := open()
		defer c.Close()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = c.Insert(ctx, part, newRecord(fmt.Sprintf("r%02d", i), 1, base.Add(time.Duration(i)*time.Millisecond)))
			}(i)
		}
		wg.Wait()
		got, err := c.List(ctx, part)
		So(err, ShouldBeNil)
		So(len(got), ShouldEqual, 20)
	})
}

func TestMemoryCollection(t *testing.T) {
	Convey("Given a memory collection", t, func() {
		collectionContract(func() Collection { return NewMemoryCollection() })

		Convey("When closed", func() {
			c := NewMemoryCollection()
			So(c.Close(), ShouldBeNil)
			So(errors.Is(c.Insert(context.Background(), "apps/x/rsvps", newRecord("a", 1, time.Now())), ErrClosed), ShouldBeTrue)
		})
	})
}

func TestSQLiteCollection(t *testing.T) {
	Convey("Given a SQLite collection in a temp dir", t, func() {
		dir := t.TempDir()
		n := 0
		collectionContract(func() Collection {
			n++
			c, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(dir, fmt.Sprintf("rsvp-%d.db", n)))
			So(err, ShouldBeNil)
			return c
		})

		Convey("When migrations run twice", func() {
			path := filepath.Join(dir, "twice.db")
			So(MigrateDSN(context.Background(), DriverSQLite, path), ShouldBeNil)
			c, err := OpenSQL(context.Background(), DriverSQLite, path)
			So(err, ShouldBeNil)
			So(c.Close(), ShouldBeNil)
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given driver names", t, func() {
		c, err := Open(context.Background(), "", "")
		So(err, ShouldBeNil)
		So(c, ShouldHaveSameTypeAs, &MemoryCollection{})

		_, err = Open(context.Background(), "mongo", "x")
		So(errors.Is(err, ErrUnknownDriver), ShouldBeTrue)

		_, err = Open(context.Background(), DriverSQLite, " ")
		So(err, ShouldNotBeNil)
	})
}

func TestRebind(t *testing.T) {
	pg := &SQLCollection{driver: DriverPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("unexpected rebind: %q", got)
	}
	lite := &SQLCollection{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite query should be untouched: %q", got)
	}
}
