package api

import (
	"errors"
	"testing"
	"time"

	"go-steam-librarian/internal/models"
)

type fetchResult struct {
	body   []byte
	status int
	err    error
}

// scriptedFetcher replays canned responses; the last one repeats forever.
type scriptedFetcher struct {
	responses []fetchResult
	calls     int
	urls      []string
}

func (f *scriptedFetcher) Get(url string) ([]byte, int, error) {
	f.urls = append(f.urls, url)
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	r := f.responses[idx]
	return r.body, r.status, r.err
}

func newTestClient(f Fetcher) (*Client, *[]time.Duration) {
	c := NewClient(f, models.Config{})
	sleeps := &[]time.Duration{}
	c.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return c, sleeps
}

func TestGetJSONBurstPacing(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResult{{body: []byte(`{}`), status: 200}}}
	client, sleeps := newTestClient(fetcher)

	// Calls 1-5 fill the burst window without any pause.
	for i := 0; i < 5; i++ {
		if _, err := client.GetJSON("https://example.test/api"); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
	}
	if len(*sleeps) != 0 {
		t.Fatalf("got %d pauses during the first 5 calls, want 0", len(*sleeps))
	}

	// Call 6 pays exactly one cooldown.
	if _, err := client.GetJSON("https://example.test/api"); err != nil {
		t.Fatalf("call 6: unexpected error: %v", err)
	}
	if len(*sleeps) != 1 {
		t.Fatalf("got %d pauses after call 6, want 1", len(*sleeps))
	}
	if (*sleeps)[0] != time.Duration(DefaultCooldownMs)*time.Millisecond {
		t.Errorf("cooldown = %s, want %dms", (*sleeps)[0], DefaultCooldownMs)
	}

	// The window restarts: calls 7-10 are free, call 11 pays again.
	for i := 0; i < 4; i++ {
		if _, err := client.GetJSON("https://example.test/api"); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+7, err)
		}
	}
	if len(*sleeps) != 1 {
		t.Fatalf("got %d pauses after call 10, want still 1", len(*sleeps))
	}
	if _, err := client.GetJSON("https://example.test/api"); err != nil {
		t.Fatalf("call 11: unexpected error: %v", err)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("got %d pauses after call 11, want 2", len(*sleeps))
	}
}

func TestGetJSONRetriesAfter429(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResult{
		{status: 429},
		{body: []byte(`{"ok":true}`), status: 200},
	}}
	client, sleeps := newTestClient(fetcher)

	body, err := client.GetJSON("https://example.test/api")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s, want the retried payload", body)
	}
	if fetcher.calls != 2 {
		t.Errorf("requests = %d, want 2", fetcher.calls)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 5*time.Second {
		t.Errorf("waits = %v, want [5s]", *sleeps)
	}
}

func TestGetJSONRateLimitExhausted(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResult{{status: 429}}}
	client, sleeps := newTestClient(fetcher)

	_, err := client.GetJSON("https://example.test/api")
	if !errors.Is(err, ErrRateLimitExhausted) {
		t.Fatalf("err = %v, want ErrRateLimitExhausted", err)
	}
	if fetcher.calls != 5 {
		t.Errorf("requests = %d, want 5 (initial + 4 retries, no 6th)", fetcher.calls)
	}

	want := []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("waits = %v, want %v", *sleeps, want)
	}
	for i, w := range want {
		if (*sleeps)[i] != w {
			t.Errorf("wait %d = %s, want %s", i+1, (*sleeps)[i], w)
		}
	}
}

func TestGetJSONHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"not found", 404, false},
		{"forbidden", 403, false},
		{"server error", 500, true},
		{"unavailable", 503, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &scriptedFetcher{responses: []fetchResult{{status: tc.status}}}
			client, sleeps := newTestClient(fetcher)

			_, err := client.GetJSON("https://example.test/api")
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("err = %v, want StatusError", err)
			}
			if statusErr.Code != tc.status {
				t.Errorf("code = %d, want %d", statusErr.Code, tc.status)
			}
			if fetcher.calls != 1 {
				t.Errorf("requests = %d, want 1 (no retries on plain HTTP errors)", fetcher.calls)
			}
			if len(*sleeps) != 0 {
				t.Errorf("waits = %v, want none", *sleeps)
			}
			if got := IsTransient(err); got != tc.transient {
				t.Errorf("IsTransient = %v, want %v", got, tc.transient)
			}
		})
	}
}

func TestGetJSONEmptyBody(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResult{{body: nil, status: 200}}}
	client, _ := newTestClient(fetcher)

	_, err := client.GetJSON("https://example.test/api")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork for an empty 200 body", err)
	}
}

func TestGetJSONTransportError(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResult{{err: errors.New("connection refused")}}}
	client, _ := newTestClient(fetcher)

	_, err := client.GetJSON("https://example.test/api")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if !IsTransient(err) {
		t.Error("transport failures should be transient")
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"key in the middle",
			"https://api.steampowered.com/IPlayerService/GetOwnedGames/v0001/?key=SECRET&steamid=123",
			"https://api.steampowered.com/IPlayerService/GetOwnedGames/v0001/?key=***&steamid=123",
		},
		{
			"key at the end",
			"https://example.test/api?steamid=123&key=SECRET",
			"https://example.test/api?steamid=123&key=***",
		},
		{
			"apikey variant",
			"https://example.test/api?apikey=SECRET&x=1",
			"https://example.test/api?apikey=***&x=1",
		},
		{
			"no key present",
			"https://store.steampowered.com/api/appdetails?appids=620&cc=EE",
			"https://store.steampowered.com/api/appdetails?appids=620&cc=EE",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RedactURL(tc.in); got != tc.want {
				t.Errorf("RedactURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
