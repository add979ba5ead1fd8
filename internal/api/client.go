package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"go-steam-librarian/internal/models"

	log "github.com/sirupsen/logrus"
)

// Failure classes surfaced by the client. Callers branch with errors.Is;
// StatusError carries the code for responses that are neither 200 nor 429.
var (
	ErrNetwork            = errors.New("steam api network failure")
	ErrRateLimitExhausted = errors.New("steam api rate limit retries exhausted")
	ErrMissingAPIKey      = errors.New("steam api key not configured")
	ErrMissingSteamID     = errors.New("steam account id not configured")
)

// StatusError reports a non-200, non-429 response. The client never retries
// these.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("steam api returned HTTP %d", e.Code)
}

// IsTransient reports whether err is worth retrying at a higher level:
// transport failures and 5xx responses qualify, everything else does not.
func IsTransient(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	return false
}

var keyParamRegex = regexp.MustCompile(`key=[^&]*`)

// RedactURL masks the key query parameter so the account key never reaches a
// log line or report. Matching the bare "key=" substring also covers apikey=
// style parameters.
func RedactURL(rawURL string) string {
	return keyParamRegex.ReplaceAllString(rawURL, "key=***")
}

// Fetcher performs a single HTTP GET. The production implementation wraps
// *http.Client; tests substitute canned responses.
type Fetcher interface {
	Get(url string) (body []byte, status int, err error)
}

// HTTPFetcher is the production Fetcher.
type HTTPFetcher struct {
	HttpClient *http.Client
}

func (f *HTTPFetcher) Get(url string) ([]byte, int, error) {
	resp, err := f.HttpClient.Get(url)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// Throttle defaults, applied when the config leaves them at zero.
const (
	DefaultBurstSize    = 5
	DefaultCooldownMs   = 1000
	DefaultMaxRetries   = 4
	DefaultRetryWaitSec = 5
)

// JSONGetter is the request surface the scanner and scraper depend on.
// *Client implements it; tests substitute their own.
type JSONGetter interface {
	GetJSON(rawURL string) ([]byte, error)
}

// Client is the throttled Steam API client. All pacing and retry state lives
// on the instance, so separate clients never share counters and tests can run
// in parallel.
type Client struct {
	fetcher Fetcher

	burstSize  int           // calls allowed before a forced pause
	cooldown   time.Duration // pause inserted once the burst window fills
	maxRetries int           // 429 retries before giving up
	retryWait  time.Duration // base 429 wait, multiplied by the attempt number

	calls int                 // calls performed since the last cooldown
	sleep func(time.Duration) // swapped out in tests
}

var _ JSONGetter = (*Client)(nil)

// NewClient creates a throttled client around fetcher, filling zero config
// values with the defaults above.
func NewClient(fetcher Fetcher, cfg models.Config) *Client {
	if fetcher == nil {
		fetcher = &HTTPFetcher{HttpClient: &http.Client{Timeout: 30 * time.Second}}
	}

	burst := cfg.ApiBurstSize
	if burst <= 0 {
		burst = DefaultBurstSize
	}
	cooldownMs := cfg.ApiCooldownMs
	if cooldownMs <= 0 {
		cooldownMs = DefaultCooldownMs
	}
	retries := cfg.ApiMaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	waitSec := cfg.ApiRetryWaitSec
	if waitSec <= 0 {
		waitSec = DefaultRetryWaitSec
	}

	return &Client{
		fetcher:    fetcher,
		burstSize:  burst,
		cooldown:   time.Duration(cooldownMs) * time.Millisecond,
		maxRetries: retries,
		retryWait:  time.Duration(waitSec) * time.Second,
		sleep:      time.Sleep,
	}
}

// GetJSON performs one throttled GET and returns the raw response body.
//
// Pacing: the first burstSize calls go straight through; once the window is
// full, one cooldown pause is inserted before the next call and the counter
// starts over. A 429 waits retryWait × attempt and tries again, up to
// maxRetries retries per call; a further 429 surfaces ErrRateLimitExhausted.
// Any other non-200 status returns a StatusError immediately, and a 200 with
// an empty body counts as a network failure rather than an empty result.
func (c *Client) GetJSON(rawURL string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		c.pace()
		body, status, err := c.fetcher.Get(rawURL)
		c.calls++

		if err != nil {
			log.WithError(err).Errorf("Request failed for %s", RedactURL(rawURL))
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		switch {
		case status == http.StatusOK:
			if len(body) == 0 {
				log.Errorf("Got HTTP 200 with an empty body for %s", RedactURL(rawURL))
				return nil, fmt.Errorf("%w: empty response body", ErrNetwork)
			}
			return body, nil

		case status == http.StatusTooManyRequests:
			if attempt > c.maxRetries {
				log.Errorf("Giving up on %s: still rate limited after %d attempts", RedactURL(rawURL), attempt)
				return nil, fmt.Errorf("%w (%d attempts)", ErrRateLimitExhausted, attempt)
			}
			wait := time.Duration(attempt) * c.retryWait
			log.Warnf("Rate limited (attempt %d/%d), waiting %s before retrying", attempt, c.maxRetries, wait)
			c.sleep(wait)

		default:
			log.Errorf("Steam HTTP error code %d for %s", status, RedactURL(rawURL))
			return nil, &StatusError{Code: status}
		}
	}
}

// pace inserts the cooldown once the burst window fills.
func (c *Client) pace() {
	if c.calls >= c.burstSize {
		log.Debugf("Burst window full after %d calls, cooling down for %s", c.calls, c.cooldown)
		c.sleep(c.cooldown)
		c.calls = 0
	}
}
