package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ramblin/backend/internal/config"
)

// browserUserAgent avoids the blanket blocks some shortener services apply
// to default Go client requests.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// redirectResolver follows a URL's redirect chain to its final location.
// Resolution is best effort: on any failure the original URL comes back
// with a zero hop count and the caller proceeds against it.
type redirectResolver struct {
	httpClient   *http.Client
	maxRedirects int
}

type resolvedURL struct {
	URL           string
	RedirectCount int
}

func newRedirectResolver(cfg config.Config) *redirectResolver {
	timeoutSeconds := cfg.ResolveTimeoutSecs
	if timeoutSeconds <= 0 {
		timeoutSeconds = 10
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	return &redirectResolver{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
		maxRedirects: maxRedirects,
	}
}

func (r *redirectResolver) resolve(ctx context.Context, rawURL string) resolvedURL {
	fallback := resolvedURL{URL: rawURL, RedirectCount: 0}

	redirects := 0
	client := &http.Client{
		Timeout:   r.httpClient.Timeout,
		Transport: r.httpClient.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			redirects = len(via)
			if len(via) >= r.maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fallback
	}
	request.Header.Set("User-Agent", browserUserAgent)

	response, err := client.Do(request)
	if err != nil {
		log.Printf("url resolve failed url=%s err=%v", rawURL, err)
		return fallback
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 1<<16))

	final := response.Request.URL.String()
	if strings.TrimSpace(final) == "" {
		return fallback
	}
	return resolvedURL{URL: final, RedirectCount: redirects}
}

// validHTTPURL accepts only absolute http/https URLs with a host.
func validHTTPURL(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
