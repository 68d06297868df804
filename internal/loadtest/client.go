package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/okian/rsvp/internal/domain/model"
)

// pageState is the subset of the page state the run inspects.
type pageState struct {
	Phase          string         `json:"phase"`
	Roster         []model.Record `json:"roster"`
	TotalAttendees int            `json:"totalAttendees"`
}

type pageResponse struct {
	PageID string    `json:"pageId"`
	State  pageState `json:"state"`
}

// visitor is one browser: its own cookie jar, so its own page.
type visitor struct {
	base   string
	client *http.Client
}

func newVisitor(base string, timeout time.Duration) *visitor {
	jar, _ := cookiejar.New(nil)
	return &visitor{base: base, client: &http.Client{Jar: jar, Timeout: timeout}}
}

func (v *visitor) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, v.base+path, &buf)
	if err != nil {
		return 0, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode < http.StatusMultipleChoices {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (v *visitor) open(ctx context.Context) (pageResponse, error) {
	var resp pageResponse
	code, err := v.do(ctx, http.MethodPost, "/api/page", nil, &resp)
	if err != nil {
		return resp, err
	}
	if code != http.StatusCreated {
		return resp, fmt.Errorf("open page: status %d", code)
	}
	return resp, nil
}

func (v *visitor) state(ctx context.Context) (pageState, error) {
	var resp pageResponse
	code, err := v.do(ctx, http.MethodGet, "/api/page", nil, &resp)
	if err != nil {
		return pageState{}, err
	}
	if code != http.StatusOK {
		return pageState{}, fmt.Errorf("get page: status %d", code)
	}
	return resp.State, nil
}

// waitPhase polls until the page reaches phase or ctx ends.
func (v *visitor) waitPhase(ctx context.Context, phase string) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		st, err := v.state(ctx)
		if err == nil && st.Phase == phase {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", phase, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (v *visitor) submit(ctx context.Context, d model.Draft) error {
	code, err := v.do(ctx, http.MethodPut, "/api/page/draft", d, nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("update draft: status %d", code)
	}
	code, err = v.do(ctx, http.MethodPost, "/api/page/submit", nil, nil)
	if err != nil {
		return err
	}
	if code != http.StatusCreated {
		return fmt.Errorf("submit: status %d", code)
	}
	return nil
}

func (v *visitor) close(ctx context.Context) {
	_, _ = v.do(ctx, http.MethodDelete, "/api/page", nil, nil)
}
