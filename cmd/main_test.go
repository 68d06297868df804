package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/rsvp/internal/adapters/auth"
	"github.com/okian/rsvp/internal/config"
	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/internal/page/view"
	"github.com/okian/rsvp/pkg/logger"
)

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}

func TestLoadEnvFile(t *testing.T) {
	convey.Convey("Given dotenv files", t, func() {
		dir := t.TempDir()
		const key = "RSVP_CMD_TEST_ONLY_VALUE"
		defer func() { _ = os.Unsetenv(key) }()

		convey.Convey("When the file is missing", func() {
			convey.So(loadEnvFile(filepath.Join(dir, "absent.env")), convey.ShouldBeNil)
			convey.So(loadEnvFile(""), convey.ShouldBeNil)
		})

		convey.Convey("When the file exists", func() {
			path := filepath.Join(dir, ".env")
			convey.So(os.WriteFile(path, []byte(key+"=from-file\n"), 0o600), convey.ShouldBeNil)

			convey.Convey("Then unset variables are exported", func() {
				_ = os.Unsetenv(key)
				convey.So(loadEnvFile(path), convey.ShouldBeNil)
				convey.So(os.Getenv(key), convey.ShouldEqual, "from-file")
			})

			convey.Convey("Then variables already set win", func() {
				_ = os.Setenv(key, "from-env")
				convey.So(loadEnvFile(path), convey.ShouldBeNil)
				convey.So(os.Getenv(key), convey.ShouldEqual, "from-env")
			})
		})
	})
}

func TestTokenCommand(t *testing.T) {
	convey.Convey("Given an auth secret", t, func() {
		t.Setenv("RSVP_AUTH_SECRET", "cmd-test-secret")

		convey.Convey("When a token is minted for a subject", func() {
			token, err := execute("token", "--subject", "host")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the issuer accepts it", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				issuer := newIssuer(cfg)
				claims, err := issuer.Verify(context.Background(), token)
				convey.So(err, convey.ShouldBeNil)
				convey.So(claims.Subject, convey.ShouldEqual, "host")
			})
		})
	})

	convey.Convey("Given no auth secret", t, func() {
		t.Setenv("RSVP_AUTH_SECRET", "")

		convey.Convey("Then minting fails", func() {
			_, err := execute("token", "--subject", "host")
			convey.So(errors.Is(err, auth.ErrNotConfigured), convey.ShouldBeTrue)
		})
	})
}

func TestMigrateCommand(t *testing.T) {
	convey.Convey("Given a SQLite store", t, func() {
		path := filepath.Join(t.TempDir(), "rsvp.db")
		t.Setenv("RSVP_STORE_DRIVER", "sqlite")
		t.Setenv("RSVP_STORE_DSN", path)

		convey.Convey("Then migrate creates the schema and can run again", func() {
			_, err := execute("migrate")
			convey.So(err, convey.ShouldBeNil)
			_, err = os.Stat(path)
			convey.So(err, convey.ShouldBeNil)

			_, err = execute("migrate")
			convey.So(err, convey.ShouldBeNil)
		})
	})

	convey.Convey("Given an invalid configuration", t, func() {
		t.Setenv("RSVP_STORE_DRIVER", "sqlite")
		t.Setenv("RSVP_STORE_DSN", "")

		convey.Convey("Then the root refuses to run", func() {
			_, err := execute("migrate")
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestApplication(t *testing.T) {
	convey.Convey("Given the wired application on a memory store", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.WorkerCount = 2
		app, err := newApplication(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		srv := httptest.NewServer(app.handler)
		defer func() {
			srv.Close()
			_ = app.close(ctx)
		}()

		get := func(path string) (int, string) {
			resp, err := http.Get(srv.URL + path)
			if err != nil {
				return 0, ""
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return resp.StatusCode, string(body)
		}

		convey.Convey("Then every surface is routed", func() {
			code, body := get("/")
			convey.So(code, convey.ShouldEqual, http.StatusOK)
			convey.So(body, convey.ShouldContainSubstring, "<title>RSVP</title>")

			code, body = get("/api/event")
			convey.So(code, convey.ShouldEqual, http.StatusOK)
			convey.So(body, convey.ShouldContainSubstring, cfg.EventTitle)

			code, _ = get("/openapi.yaml")
			convey.So(code, convey.ShouldEqual, http.StatusOK)
			code, _ = get("/healthz")
			convey.So(code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then a page can be opened", func() {
			resp, err := http.Post(srv.URL+"/api/page", "application/json", nil)
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusCreated)
			convey.So(app.pages.Len(), convey.ShouldEqual, 1)
		})
	})

	convey.Convey("Given a configured initial sign-in token", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.WorkerCount = 1
		cfg.AuthSecret = "cmd-test-secret"
		token, err := newIssuer(cfg).Mint("host")
		convey.So(err, convey.ShouldBeNil)
		cfg.InitialAuthToken = token

		app, err := newApplication(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = app.close(ctx) }()

		convey.Convey("When several visitors open pages", func() {
			var pages []*view.Controller
			for i := 0; i < 3; i++ {
				_, page, err := app.pages.Open(ctx, "")
				convey.So(err, convey.ShouldBeNil)
				pages = append(pages, page)
			}

			convey.Convey("Then only the first signs in with the token and the rest anonymously", func() {
				first := pages[0].State().Identity
				convey.So(first, convey.ShouldNotBeNil)
				convey.So(first.UID, convey.ShouldEqual, "host")
				convey.So(first.Provider, convey.ShouldEqual, model.ProviderCustomToken)
				for _, page := range pages[1:] {
					id := page.State().Identity
					convey.So(id, convey.ShouldNotBeNil)
					convey.So(id.IsAnonymous(), convey.ShouldBeTrue)
				}
			})
		})
	})

	convey.Convey("Given an unparsable event time", t, func() {
		cfg := config.New()
		cfg.EventAt = "tomorrow"

		convey.Convey("Then wiring fails before anything starts", func() {
			_, err := newApplication(context.Background(), cfg, logger.Nop())
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given service stats of mixed shapes", t, func() {
		stats := map[string]any{"queueLength": 3, "workerCount": 2, "subscribers": "n/a"}

		convey.Convey("Then the updaters never panic", func() {
			convey.So(func() { updateServiceMetrics(stats) }, convey.ShouldNotPanic)
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
