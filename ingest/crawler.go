package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/text/unicode/norm"

	"github.com/fathomhq/fathom"
)

// Crawler fetches web pages and converts them to documents.
type Crawler interface {
	Crawl(ctx context.Context, urls []string) ([]fathom.Document, error)
}

const (
	crawlUserAgent = "fathom-crawler/1.0"

	// maxFetchBytes caps the response body read per page (10 MB).
	maxFetchBytes = 10 << 20
)

// Compile-time interface check.
var _ Crawler = (*ReadabilityCrawler)(nil)

// ReadabilityCrawler fetches pages over HTTP and extracts the readable
// article content, dropping navigation, ads, and boilerplate. Pages that
// fail to fetch or parse are logged and skipped rather than failing the
// whole crawl.
type ReadabilityCrawler struct {
	client *http.Client
	logger *slog.Logger
}

// CrawlerOption configures a ReadabilityCrawler.
type CrawlerOption func(*ReadabilityCrawler)

// WithCrawlerHTTPClient sets the HTTP client used for fetching pages.
func WithCrawlerHTTPClient(c *http.Client) CrawlerOption {
	return func(rc *ReadabilityCrawler) { rc.client = c }
}

// WithCrawlerLogger sets the logger.
func WithCrawlerLogger(l *slog.Logger) CrawlerOption {
	return func(rc *ReadabilityCrawler) {
		if l != nil {
			rc.logger = l
		}
	}
}

// NewReadabilityCrawler creates a crawler with a 15 second request timeout.
func NewReadabilityCrawler(opts ...CrawlerOption) *ReadabilityCrawler {
	rc := &ReadabilityCrawler{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: nopLogger,
	}
	for _, o := range opts {
		o(rc)
	}
	return rc
}

// Crawl fetches each URL and returns one document per successfully fetched
// page. Per-URL failures are logged and skipped; a cancelled context stops
// the crawl.
func (rc *ReadabilityCrawler) Crawl(ctx context.Context, urls []string) ([]fathom.Document, error) {
	docs := make([]fathom.Document, 0, len(urls))
	for _, raw := range urls {
		doc, err := rc.fetch(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return docs, ctx.Err()
			}
			rc.logger.Warn("crawl: fetch failed", "url", raw, "error", err)
			continue
		}
		rc.logger.Debug("crawl: fetch ok", "url", raw, "bytes", len(doc.Text))
		docs = append(docs, doc)
	}
	return docs, nil
}

func (rc *ReadabilityCrawler) fetch(ctx context.Context, raw string) (fathom.Document, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return fathom.Document{}, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return fathom.Document{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", crawlUserAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return fathom.Document{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fathom.Document{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return fathom.Document{}, fmt.Errorf("read body: %w", err)
	}

	title, text := extractArticle(body, u)
	if text == "" {
		return fathom.Document{}, fmt.Errorf("no readable content")
	}

	metadata := map[string]any{}
	if title != "" {
		metadata[fathom.MetaTitle] = title
	}
	return fathom.Document{Text: text, Reference: raw, Metadata: metadata}, nil
}

// extractArticle runs readability extraction over the page, falling back to
// plain tag stripping when no article body is found. Output is normalized to
// NFC so that visually identical text embeds identically.
func extractArticle(body []byte, u *url.URL) (title, text string) {
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err == nil {
		title = strings.TrimSpace(article.Title)
		text = strings.TrimSpace(article.TextContent)
	}
	if text == "" {
		text = StripHTML(string(body))
	}
	return title, norm.NFC.String(collapseWhitespace(text))
}
