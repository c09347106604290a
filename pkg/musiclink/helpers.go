package musiclink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// commonUserAgent is the user agent string used for all HTTP requests.
	commonUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// commonAcceptHeader is the accept header used for HTML requests.
	commonAcceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	// defaultHTTPTimeout is the default timeout for HTTP requests.
	defaultHTTPTimeout = 10 * time.Second
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 3
	// maxPageSize limits how much of a page is parsed; metadata sits in <head>.
	maxPageSize = 512 * 1024
)

// ErrTooManyRedirects is returned when too many redirects are encountered.
var ErrTooManyRedirects = errors.New("too many redirects")

// newHTTPClient creates a new HTTP client with standard settings and redirect validation.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultHTTPTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// fetchDocument fetches and parses an HTML page.
func fetchDocument(ctx context.Context, client *http.Client, pageURL, serviceName string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", commonUserAgent)
	req.Header.Set("Accept", commonAcceptHeader)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", serviceName, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s page: %w", serviceName, err)
	}
	return doc, nil
}

// fetchJSON fetches reqURL and decodes the JSON body into dest.
func fetchJSON(ctx context.Context, client *http.Client, reqURL, serviceName string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", commonUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", serviceName, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", serviceName, err)
	}
	return nil
}

// metaContent returns the content of the first <meta property=...> or
// <meta name=...> tag with the given key.
func metaContent(doc *goquery.Document, key string) string {
	selector := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, key, key)
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// splitTitleArtist splits "Title<sep>Artist" on the first separator that occurs.
// Without a separator the whole text is the title.
func splitTitleArtist(text string, separators ...string) (title, artist string) {
	text = strings.TrimSpace(text)
	for _, sep := range separators {
		if before, after, ok := strings.Cut(text, sep); ok {
			return strings.TrimSpace(before), strings.TrimSpace(after)
		}
	}
	return text, ""
}
