package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/nao1215/sitescope/internal/config"
	"github.com/nao1215/sitescope/internal/model"
	"github.com/nao1215/sitescope/internal/validate"
)

// maxRedirects bounds the redirect chain of a single fetch.
const maxRedirects = 5

// Fetcher retrieves and parses a single page.
type Fetcher struct {
	// client performs the HTTP requests.
	client *http.Client

	// userAgent is the default User-Agent header.
	userAgent string

	// maxBodySize limits the size of response bodies to read.
	maxBodySize int64

	// sites holds per-host cookies and headers.
	sites config.HostSettings

	// now stamps FetchedAt.
	now func() time.Time

	// allowPrivate lets the default client dial private addresses.
	allowPrivate bool

	logger *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client. The default has no overall timeout;
// the executor bounds each attempt.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithAllowPrivate lets the default client connect to loopback, private
// and link-local addresses. It has no effect with WithHTTPClient.
func WithAllowPrivate(allow bool) Option {
	return func(f *Fetcher) {
		f.allowPrivate = allow
	}
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(size int64) Option {
	return func(f *Fetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithHostSettings sets per-host cookies, headers and user agents.
func WithHostSettings(hs config.HostSettings) Option {
	return func(f *Fetcher) {
		f.sites = hs
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		f.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		userAgent:   config.DefaultUserAgent,
		maxBodySize: config.DefaultMaxBodySize,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = newClient(f.allowPrivate)
	}
	return f
}

// newClient returns a client whose dialer refuses private addresses unless
// allowPrivate is set. The check runs on the resolved address of every
// connection, redirects included.
func newClient(allowPrivate bool) *http.Client {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	if !allowPrivate {
		dialer.Control = refusePrivate
	}
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib default
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: more than %d redirects", ErrBlockedAddress, maxRedirects)
			}
			return nil
		},
	}
}

func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || validate.IsPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// FromConfig creates a Fetcher from the scraper section.
func FromConfig(cfg config.ScraperConfig, opts ...Option) *Fetcher {
	base := []Option{
		WithUserAgent(cfg.UserAgent),
		WithMaxBodySize(cfg.MaxBodySize),
		WithHostSettings(cfg.Sites),
	}
	return New(append(base, opts...)...)
}

// Fetch retrieves pageURL and returns the parsed page.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	host := strings.ToLower(req.URL.Hostname())
	site := f.sites.ForHost(host)
	ua := f.userAgent
	if site.UserAgent != "" {
		ua = site.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if site.Cookie != "" {
		req.Header.Set("Cookie", site.Cookie)
	}
	for k, v := range site.Headers {
		req.Header.Set(k, v)
	}

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{URL: pageURL, Code: resp.StatusCode}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &model.TransientProviderError{Err: statusErr}
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}

	page := &model.Page{
		URL:         pageURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FetchedAt:   f.now(),
	}
	page.ComputeHash(body)

	switch {
	case page.IsHTML() || page.ContentType == "" && looksLikeHTML(body):
		if err := parseHTML(page, body, req.URL); err != nil {
			return nil, err
		}
	case strings.HasPrefix(strings.ToLower(page.ContentType), "text/plain"):
		page.Content = collapseSpace(string(body))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContent, page.ContentType)
	}

	f.logger.Debug("page fetched",
		"url", pageURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", f.now().Sub(start),
	)
	return page, nil
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}
