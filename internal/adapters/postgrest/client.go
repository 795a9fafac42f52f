// Package postgrest stores reviews and votes in a hosted PostgREST API
// (the Supabase REST endpoint of the original deployment).
package postgrest

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/adapters/observability"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

const (
	maxAttempts     = 4
	defaultPageSize = 1000
)

type Client struct {
	base    string
	key     string
	reviews string
	votes   string
	hc      *http.Client
	rl      *rate.Limiter
	page    int
}

type Options struct {
	BaseURL      string // e.g. https://xyz.supabase.co/rest/v1
	APIKey       string
	RPS          int
	ReviewsTable string
	VotesTable   string
	HTTPClient   *http.Client
	// PageSize bounds each list request. Servers may cap it lower
	// (max-rows); paging follows Content-Range either way.
	PageSize int
}

func New(o Options) (*Client, error) {
	if o.BaseURL == "" {
		return nil, errors.New("postgrest: base URL is required")
	}
	if o.RPS <= 0 {
		o.RPS = 10
	}
	if o.ReviewsTable == "" {
		o.ReviewsTable = "reviews_mw2024"
	}
	if o.VotesTable == "" {
		o.VotesTable = "review_votes_mw2024"
	}
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		base:    strings.TrimRight(o.BaseURL, "/"),
		key:     o.APIKey,
		reviews: o.ReviewsTable,
		votes:   o.VotesTable,
		hc:      o.HTTPClient,
		rl:      rate.NewLimiter(rate.Limit(o.RPS), o.RPS),
		page:    o.PageSize,
	}, nil
}

// filter is a PostgREST query string. Operators are part of the value,
// e.g. Status: "eq.approved".
type filter struct {
	Select     string `url:"select,omitempty"`
	ID         string `url:"id,omitempty"`
	Status     string `url:"status,omitempty"`
	ReviewID   string `url:"review_id,omitempty"`
	UserIP     string `url:"user_ip,omitempty"`
	Order      string `url:"order,omitempty"`
	Limit      int    `url:"limit,omitempty"`
	Offset     int    `url:"offset,omitempty"`
	OnConflict string `url:"on_conflict,omitempty"`
}

func eq(v string) string { return "eq." + v }

type call struct {
	op     string // metric label
	method string
	table  string
	filter filter
	body   any
	prefer string
	out    any
	header *http.Header // response headers on success
}

// do sends one request. GETs are retried on 429 and transient 5xx,
// honoring Retry-After; writes are sent once.
func (c *Client) do(ctx context.Context, cl call) error {
	qv, err := query.Values(cl.filter)
	if err != nil {
		return errors.Wrap(err, "postgrest: encode query")
	}
	u := c.base + "/" + url.PathEscape(cl.table)
	if enc := qv.Encode(); enc != "" {
		u += "?" + enc
	}
	var payload []byte
	if cl.body != nil {
		if payload, err = json.Marshal(cl.body); err != nil {
			return errors.Wrap(err, "postgrest: encode body")
		}
	}

	attempts := 1
	if cl.method == http.MethodGet {
		attempts = maxAttempts
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := c.rl.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, cl.method, u, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		c.headers(req, cl)

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveBackend("rest", cl.op, "error", time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = errors.Wrapf(domain.ErrBackend, "postgrest %s: %v", cl.op, err)
			if i < attempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return lastErr
		}
		observability.ObserveBackend("rest", cl.op, strconv.Itoa(resp.StatusCode), time.Since(start))

		switch {
		case resp.StatusCode == http.StatusNoContent:
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			defer resp.Body.Close()
			if cl.header != nil {
				*cl.header = resp.Header
			}
			if cl.out == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
				return errors.Wrapf(domain.ErrBackend, "postgrest %s: decode: %v", cl.op, err)
			}
			return nil

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			wait := retryAfter(resp)
			msg := readBody(resp)
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = errors.Wrapf(domain.ErrBackend, "postgrest %s: status %d: %s", cl.op, resp.StatusCode, msg)
			if i < attempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		case resp.StatusCode == http.StatusNotFound:
			msg := readBody(resp)
			return errors.Wrapf(domain.ErrNotFound, "postgrest %s: %s", cl.op, msg)

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			msg := readBody(resp)
			return errors.Wrapf(domain.ErrBackend, "postgrest %s: rejected credentials (%d): %s", cl.op, resp.StatusCode, msg)

		default:
			msg := readBody(resp)
			return errors.Wrapf(domain.ErrInvalid, "postgrest %s: status %d: %s", cl.op, resp.StatusCode, msg)
		}
	}
	return lastErr
}

// fetchAll pages a GET with limit/offset. It stops at the total reported by
// Content-Range, or at the first empty page when the server omits it, so a
// max-rows cap on the server never truncates the result.
func fetchAll[T any](ctx context.Context, c *Client, cl call) ([]T, error) {
	cl.prefer = "count=exact"
	var out []T
	for {
		var (
			page []T
			hdr  http.Header
		)
		cl.filter.Limit, cl.filter.Offset = c.page, len(out)
		cl.out, cl.header = &page, &hdr
		if err := c.do(ctx, cl); err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) == 0 {
			return out, nil
		}
		if total, ok := rangeTotal(hdr.Get("Content-Range")); ok && len(out) >= total {
			return out, nil
		}
	}
}

// rangeTotal reads the total from "0-999/1234"; "*" means unknown.
func rangeTotal(h string) (int, bool) {
	_, total, ok := strings.Cut(h, "/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(total))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *Client) headers(req *http.Request, cl call) {
	if c.key != "" {
		req.Header.Set("apikey", c.key)
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Info", "metawatch")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.prefer != "" {
		req.Header.Set("Prefer", cl.prefer)
	}
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return strings.TrimSpace(string(b))
}

// sleepCtx waits for d or returns false if ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After in seconds or HTTP-date form; 0 if absent.
func retryAfter(resp *http.Response) time.Duration {
	h := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	return base + time.Duration(0.5*float64(b[0])/255.0*float64(base))
}

func (c *Client) String() string { return fmt.Sprintf("postgrest(%s)", c.base) }
