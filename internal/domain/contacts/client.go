package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ErrContactFetchFailed marks an exhausted retry budget. The wrapped
// FetchError carries the last HTTP status for diagnostics.
var ErrContactFetchFailed = errors.New("contact fetch failed")

// FetchError reports a fetch that failed after all retries.
type FetchError struct {
	Attempts   int
	LastStatus int
	Err        error
}

func (e *FetchError) Error() string {
	if e.LastStatus > 0 {
		return fmt.Sprintf("contact fetch failed after %d attempt(s), last status %d: %v", e.Attempts, e.LastStatus, e.Err)
	}
	return fmt.Sprintf("contact fetch failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrContactFetchFailed) work on wrapped values.
func (e *FetchError) Is(target error) bool { return target == ErrContactFetchFailed }

// Options configures a Client. All values come from the explicit Config
// struct; the client holds no global state.
type Options struct {
	BaseURL    string
	Token      string
	PageSize   int
	MaxRetries int           // retries per page request, on top of the first attempt
	Backoff    time.Duration // doubled per retry
	Timeout    time.Duration // per-request
}

// Client pages through the messaging platform's contact list.
type Client struct {
	opts   Options
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a contact-list client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	return &Client{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}
}

// FetchAll returns the complete contact list. Any page that cannot be
// fetched within the retry budget aborts the whole fetch; callers must not
// write output on error so the previous consolidated file stays intact.
func (c *Client) FetchAll(ctx context.Context) ([]ContactRecord, error) {
	var all []ContactRecord
	pageToken := ""
	pageNum := 1

	for {
		p, err := c.fetchPage(ctx, pageNum, pageToken)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Contacts...)

		if p.NextPage != "" {
			pageToken = p.NextPage
			pageNum++
			continue
		}
		if len(p.Contacts) < c.opts.PageSize {
			break
		}
		pageNum++
	}

	c.logger.Info().Int("contacts", len(all)).Int("pages", pageNum).Msg("contact list fetched")
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, pageNum int, pageToken string) (*page, error) {
	var lastStatus int
	var lastErr error

	attempts := c.opts.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			// Exponential backoff between attempts, context-aware.
			delay := c.opts.Backoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return nil, &FetchError{Attempts: attempt - 1, LastStatus: lastStatus, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		p, status, err := c.doRequest(ctx, pageNum, pageToken)
		if err == nil {
			return p, nil
		}
		lastStatus, lastErr = status, err

		// Client errors are not going to succeed on retry.
		if status >= 400 && status < 500 {
			return nil, &FetchError{Attempts: attempt, LastStatus: status, Err: err}
		}

		c.logger.Warn().
			Int("attempt", attempt).
			Int("page", pageNum).
			Int("status", status).
			Err(err).
			Msg("contact page fetch failed, will retry")
	}

	return nil, &FetchError{Attempts: attempts, LastStatus: lastStatus, Err: lastErr}
}

func (c *Client) doRequest(ctx context.Context, pageNum int, pageToken string) (*page, int, error) {
	u, err := url.Parse(c.opts.BaseURL + "/contacts")
	if err != nil {
		return nil, 0, fmt.Errorf("parse contacts url: %w", err)
	}
	q := u.Query()
	q.Set("pageSize", strconv.Itoa(c.opts.PageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	} else {
		q.Set("page", strconv.Itoa(pageNum))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode contacts page: %w", err)
	}
	return &p, resp.StatusCode, nil
}
