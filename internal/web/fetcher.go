package web

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/leonardcser/memo/internal/cache"
)

const (
	RequestTimeout  = 20 * time.Second
	MaxResponseSize = 1 * 1024 * 1024 // 1MB
	maxLinks        = 50
)

// FetchNamespace is the cache namespace page summaries are stored in.
const FetchNamespace = "web_fetch"

var (
	errBadScheme   = errors.New("url must start with http:// or https://")
	errEmptyBody   = errors.New("empty response body")
	errUnsupported = errors.New("unsupported content type: binary files like images or PDFs are not supported")
)

// invisible lists elements dropped before text extraction.
const invisible = "script, style, noscript, iframe, object, embed, img, video, picture, svg, canvas, audio, source, track, map, area, form, label, input, button, select, textarea, progress, ins, applet"

// PageSummary is the cached result of fetching one page.
type PageSummary struct {
	URL         string   `json:"url" msgpack:"url"`
	Title       string   `json:"title" msgpack:"title"`
	Description string   `json:"description" msgpack:"description"`
	Text        string   `json:"text" msgpack:"text"`
	Links       []string `json:"links" msgpack:"links"`
}

// Fetcher downloads pages and memoizes their summaries.
type Fetcher struct {
	collector *colly.Collector
	cache     *cache.Cache
	ttl       time.Duration
	userAgent func() string
}

// NewFetcher returns a Fetcher caching summaries in the FetchNamespace of c.
// An empty userAgent rotates through common browser agents.
func NewFetcher(c *cache.Cache, ttl time.Duration, userAgent string) *Fetcher {
	col := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
	)
	_ = col.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       1 * time.Second,
	})
	col.SetRequestTimeout(RequestTimeout)
	return &Fetcher{
		collector: col,
		cache:     c.Namespaced(FetchNamespace),
		ttl:       ttl,
		userAgent: userAgentFunc(userAgent),
	}
}

// Close releases the Fetcher's view of the cache.
func (f *Fetcher) Close() error { return f.cache.Close() }

// Fetch returns the summary of rawURL, from the cache when it is fresh.
// Concurrent fetches of the same URL share one download.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*PageSummary, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, errBadScheme
	}
	ps, err := cache.Wrap(ctx, f.cache, rawURL, f.ttl, func(ctx context.Context) (PageSummary, error) {
		return f.download(ctx, rawURL)
	})
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (PageSummary, error) {
	// Callbacks are per call; the clone shares the HTTP backend and limits.
	col := f.collector.Clone()
	col.Context = ctx
	col.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", f.userAgent())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	var body []byte
	var finalURL, contentType string
	col.OnResponse(func(r *colly.Response) {
		finalURL = r.Request.URL.String()
		body = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
	})

	if err := col.Visit(rawURL); err != nil {
		return PageSummary{}, err
	}
	if ctx.Err() != nil {
		return PageSummary{}, ctx.Err()
	}
	return Summarize(finalURL, contentType, body)
}

// Summarize extracts title, description, links and a markdown body from a
// fetched document. Non-HTML text is returned as is.
func Summarize(finalURL, contentType string, body []byte) (PageSummary, error) {
	if len(body) == 0 {
		return PageSummary{}, errEmptyBody
	}
	if len(body) > MaxResponseSize {
		body = append(body[:MaxResponseSize:MaxResponseSize], "... [response trimmed due to size]"...)
	}

	ct := strings.ToLower(contentType)
	if !strings.HasPrefix(ct, "text/") {
		return PageSummary{}, errUnsupported
	}
	if !strings.Contains(ct, "text/html") {
		return PageSummary{URL: finalURL, Text: string(body)}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return PageSummary{}, err
	}
	doc.Find(invisible).Remove()

	ps := PageSummary{
		URL:         finalURL,
		Title:       strings.TrimSpace(doc.Find("head > title").First().Text()),
		Description: strings.TrimSpace(doc.Find("meta[name=description]").AttrOr("content", "")),
	}
	base, _ := url.Parse(finalURL)
	ps.Links = extractLinks(doc, base)

	plain := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	doc.Find("a").Remove()
	doc.Find("header, footer, aside").Remove()

	html, err := doc.Html()
	if err != nil {
		return PageSummary{}, err
	}
	if md, err := htmltomarkdown.ConvertString(html); err == nil {
		ps.Text = md
	} else {
		ps.Text = plain
	}
	return ps, nil
}

// extractLinks resolves anchors against base and returns up to maxLinks
// sorted absolute http(s) URLs without fragments.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	set := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if !u.IsAbs() && base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		set[u.String()] = struct{}{}
	})

	links := make([]string, 0, len(set))
	for l := range set {
		links = append(links, l)
	}
	sort.Strings(links)
	if len(links) > maxLinks {
		links = links[:maxLinks]
	}
	return links
}
