// Package web fetches remote pages for the memoizer. It is the production
// cache.FetchFunc used by the CLI.
package web

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/agentuity/go-memocache/logger"
	"github.com/agentuity/go-memocache/resilience"
	"github.com/cockroachdb/errors"
	"github.com/gocolly/colly/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	DefaultTimeout     = 20 * time.Second
	DefaultMaxBodySize = 1 * 1024 * 1024 // 1MB
	DefaultUserAgent   = "memocache/1.0"
)

var (
	ErrUnsupportedScheme      = errors.New("web: url must start with http:// or https://")
	ErrUnsupportedContentType = errors.New("web: unsupported content type")
	ErrEmptyBody              = errors.New("web: empty response body")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("web: get %s: status %d", e.URL, e.StatusCode)
}

// Page is a fetched document.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Title       string
	Body        string
}

// Fetcher retrieves text resources over HTTP.
type Fetcher struct {
	base     *colly.Collector
	markdown bool
	logger   logger.Logger
	breaker  *resilience.CircuitBreakerConfig
	breakers *xsync.MapOf[string, *resilience.CircuitBreaker]
}

type options struct {
	timeout     time.Duration
	maxBodySize int
	userAgent   string
	markdown    bool
	logger      logger.Logger
	breaker     *resilience.CircuitBreakerConfig
}

// Option configures a Fetcher.
type Option func(*options)

// WithTimeout bounds each request. Defaults to DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMaxBodySize truncates bodies larger than n bytes.
func WithMaxBodySize(n int) Option {
	return func(o *options) { o.maxBodySize = n }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithMarkdown converts HTML responses to Markdown before returning them.
func WithMarkdown(enabled bool) Option {
	return func(o *options) { o.markdown = enabled }
}

// WithCircuitBreaker guards each host with its own circuit breaker. Client
// errors (4xx) and unsupported content do not count as failures unless
// config.IsFailure says otherwise.
func WithCircuitBreaker(config resilience.CircuitBreakerConfig) Option {
	return func(o *options) {
		if config.IsFailure == nil {
			config.IsFailure = isHostFailure
		}
		o.breaker = &config
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewFetcher returns a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	o := options{
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
		userAgent:   DefaultUserAgent,
		logger:      logger.NewConsoleLogger(logger.LevelNone),
	}
	for _, opt := range opts {
		opt(&o)
	}
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(o.maxBodySize),
		colly.UserAgent(o.userAgent),
	)
	c.SetRequestTimeout(o.timeout)
	return &Fetcher{
		base:     c,
		markdown: o.markdown,
		logger:   o.logger.With(map[string]interface{}{"component": "web"}),
		breaker:  o.breaker,
		breakers: xsync.NewMapOf[string, *resilience.CircuitBreaker](),
	}
}

func isHostFailure(err error) bool {
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrUnsupportedContentType) ||
		errors.Is(err, ErrEmptyBody) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// Get fetches rawURL. Non-2xx statuses and non-text content types are
// errors. With a circuit breaker configured, requests to a host whose
// circuit is open fail with resilience.ErrCircuitBreakerOpen.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Page, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, ErrUnsupportedScheme
	}
	if f.breaker == nil {
		return f.get(ctx, rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "web: parse %s", rawURL)
	}
	cb, _ := f.breakers.LoadOrCompute(u.Host, func() *resilience.CircuitBreaker {
		return resilience.NewCircuitBreaker(*f.breaker)
	})
	var page *Page
	err = cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		page, err = f.get(ctx, rawURL)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitBreakerOpen) {
		f.logger.Warn("circuit open for %s, skipping %s", u.Host, rawURL)
		return nil, errors.Wrapf(err, "web: get %s", rawURL)
	}
	return page, err
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// a clone per request keeps callbacks of concurrent fetches apart
	c := f.base.Clone()
	c.Context = ctx

	var page *Page
	var body []byte
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	})
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
		}
		body = append([]byte(nil), r.Body...)
	})

	started := time.Now()
	if err := c.Visit(rawURL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrapf(err, "web: get %s", rawURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page == nil {
		return nil, errors.Newf("web: get %s: no response", rawURL)
	}
	if page.StatusCode < http.StatusOK || page.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{URL: rawURL, StatusCode: page.StatusCode}
	}
	f.logger.Debug("fetched %s (%d bytes) in %s", rawURL, len(body), time.Since(started))

	ct := strings.ToLower(page.ContentType)
	if ct != "" && !strings.HasPrefix(ct, "text/") && !strings.Contains(ct, "xml") && !strings.Contains(ct, "json") {
		return nil, errors.Wrapf(ErrUnsupportedContentType, "%s", page.ContentType)
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	page.Body = string(body)
	if strings.Contains(ct, "html") {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, errors.Wrap(err, "web: parse html")
		}
		page.Title = strings.TrimSpace(doc.Find("head > title").First().Text())
		if f.markdown {
			md, err := htmltomarkdown.ConvertString(page.Body)
			if err != nil {
				f.logger.Warn("markdown conversion of %s failed: %s", rawURL, err)
			} else {
				page.Body = md
			}
		}
	}
	return page, nil
}

// Fetch returns the body of rawURL. Its signature matches cache.FetchFunc.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	page, err := f.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return page.Body, nil
}
