// Package fetch downloads source pages with per-site header and redirect policy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"crusty-reader/internal/site"

	"go.uber.org/zap"
)

var (
	// ErrFetch covers network failures, timeouts and non-2xx responses.
	ErrFetch = errors.New("fetch failed")
	// ErrLoginRequired means the site redirected an anonymous request to login.
	ErrLoginRequired = errors.New("login required")
)

// StatusError is returned for a terminal non-2xx response.
type StatusError struct {
	Status     int
	StatusText string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.StatusText)
}

// Is lets errors.Is(err, ErrFetch) match status failures.
func (e *StatusError) Is(target error) bool {
	return target == ErrFetch
}

// Policy controls how a single request is made.
type Policy struct {
	// ManualRedirect turns any 3xx into ErrLoginRequired instead of following it.
	ManualRedirect bool
}

// PolicyFor returns the request policy for a site family (nil means default).
func PolicyFor(f *site.Family) Policy {
	if f == nil {
		return Policy{}
	}
	return Policy{ManualRedirect: f.ManualRedirect}
}

// RawPage is a successfully fetched document.
type RawPage struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	// Truncated is set when the body was cut at MaxBodyBytes.
	Truncated bool
}

// Acquisition holds the page fetched from the submitted URL and, for
// families that expose one, the page fetched from the canonical content URL.
type Acquisition struct {
	URL       string
	Family    *site.Family
	Original  *RawPage
	Canonical *RawPage
}

// Config controls the HTTP client and request headers.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	Accept         string
	AcceptLanguage string
	MaxBodyBytes   int64
}

// DefaultConfig mimics a desktop browser; some sites block other clients or
// serve locale dependent content.
func DefaultConfig() Config {
	return Config{
		Timeout:        20 * time.Second,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7",
		MaxBodyBytes:   5 << 20,
	}
}

// Fetcher issues page requests.
type Fetcher struct {
	cfg      Config
	follow   *http.Client
	noFollow *http.Client
	logger   *zap.Logger
}

// New builds a Fetcher. A nil transport uses http.DefaultTransport.
func New(cfg Config, transport http.RoundTripper, logger *zap.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Accept == "" {
		cfg.Accept = def.Accept
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = def.AcceptLanguage
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Fetcher{
		cfg:    cfg,
		follow: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		noFollow: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Fetch performs one GET of rawURL under policy.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, policy Policy) (*RawPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", f.cfg.Accept)
	req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)

	client := f.follow
	if policy.ManualRedirect {
		client = f.noFollow
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if policy.ManualRedirect && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, fmt.Errorf("%w: redirected to %q", ErrLoginRequired, resp.Header.Get("Location"))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	truncated := int64(len(body)) > f.cfg.MaxBodyBytes
	if truncated {
		body = body[:f.cfg.MaxBodyBytes]
		f.logger.Warn("Response body truncated",
			zap.String("url", rawURL),
			zap.Int64("max_body_bytes", f.cfg.MaxBodyBytes))
	}

	return &RawPage{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Truncated:   truncated,
	}, nil
}

// Acquire fetches rawURL and, when the family exposes a canonical content
// URL, fetches that as well. A failed canonical fetch is not an error; the
// original page remains the content source.
func (f *Fetcher) Acquire(ctx context.Context, rawURL string, fam *site.Family) (*Acquisition, error) {
	logger := f.logger.With(zap.String("url", rawURL))

	original, err := f.Fetch(ctx, rawURL, PolicyFor(fam))
	if err != nil {
		logger.Warn("Fetch failed", zap.String("phase", "original"), zap.Error(err))
		return nil, err
	}
	acq := &Acquisition{URL: rawURL, Family: fam, Original: original}

	canonical := fam.CanonicalURL(rawURL)
	if canonical == "" {
		return acq, nil
	}
	page, err := f.Fetch(ctx, canonical, PolicyFor(fam))
	if err != nil {
		logger.Info("Canonical fetch failed, using original page",
			zap.String("phase", "canonical"),
			zap.String("canonical_url", canonical),
			zap.Error(err))
		return acq, nil
	}
	acq.Canonical = page
	return acq, nil
}
