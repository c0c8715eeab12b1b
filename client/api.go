package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"templefeed/models"
	"templefeed/query"
)

// ErrFeedUnavailable is returned when neither the ranked feed nor the recent
// posts fallback could be read
var ErrFeedUnavailable = errors.New("feed unavailable")

// StatusError is a non 2xx answer of the feed server
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Path, e.Code)
}

// API talks to a feed server. Concurrent calls with identical parameters
// share one request, and the ranked endpoint sits behind a circuit breaker.
type API struct {
	baseURL string
	http    *http.Client
	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker[*models.FeedResponse]
}

func NewAPI(baseURL string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "feed",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// Rejected requests say nothing about the server's health
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.Code < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
	return &API{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*models.FeedResponse](settings),
	}
}

// Values encodes req as /feed query parameters
func Values(req query.Request) url.Values {
	values := url.Values{}
	if req.UserId != "" {
		values.Set("userId", req.UserId)
	}
	if req.PageSize > 0 {
		values.Set("pageSize", strconv.Itoa(req.PageSize))
	}
	if req.LastCursor != "" {
		values.Set("lastCursor", req.LastCursor)
	}
	if req.Filter != "" {
		values.Set("filter", req.Filter)
	}
	if req.Trending {
		values.Set("trending", "true")
	}
	return values
}

// Feed returns a ranked page. When the ranked call fails or comes back empty,
// the most recent posts are returned instead.
func (a *API) Feed(ctx context.Context, req query.Request) (*models.FeedResponse, error) {
	values := Values(req)
	// Encode sorts by key, identical requests share a key
	key := "feed?" + values.Encode()

	// The shared call outlives any single caller, the http client timeout bounds it
	sharedCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(key, func() (interface{}, error) {
		return a.feedWithFallback(sharedCtx, req, values)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			log.WithField("key", key).Debug("Shared in-flight feed request")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.FeedResponse), nil
	}
}

func (a *API) feedWithFallback(ctx context.Context, req query.Request, values url.Values) (*models.FeedResponse, error) {
	primary, err := a.breaker.Execute(func() (*models.FeedResponse, error) {
		return a.get(ctx, "/feed", values)
	})
	if err == nil && len(primary.Feed) > 0 {
		return primary, nil
	}
	if err != nil {
		log.WithError(err).Warn("Ranked feed failed, falling back to recent posts")
	} else {
		log.Debug("Ranked feed empty, falling back to recent posts")
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = query.DefaultPageSize
	}
	recent, recentErr := a.Recent(ctx, limit)
	if recentErr == nil {
		return recent, nil
	}
	if err == nil {
		// the ranked feed answered, it was just empty
		return primary, nil
	}
	return nil, fmt.Errorf("%w: %v, fallback: %v", ErrFeedUnavailable, err, recentErr)
}

// Recent returns the newest posts without ranking
func (a *API) Recent(ctx context.Context, limit int) (*models.FeedResponse, error) {
	values := url.Values{}
	values.Set("limit", strconv.Itoa(limit))
	return a.get(ctx, "/feed/recent", values)
}

// BreakerState reports the state of the ranked feed circuit breaker
func (a *API) BreakerState() string {
	return a.breaker.State().String()
}

func (a *API) get(ctx context.Context, path string, values url.Values) (*models.FeedResponse, error) {
	u := a.baseURL + path
	if len(values) > 0 {
		u += "?" + values.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Path: path, Code: resp.StatusCode}
	}

	var out models.FeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if out.Feed == nil {
		out.Feed = []models.FeedItem{}
	}
	return &out, nil
}
