package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/leonardcser/memo/internal/cache"
)

// SearchNamespace is the cache namespace search results are stored in.
const SearchNamespace = "web_search"

const (
	defaultEndpoint = "https://html.duckduckgo.com/html/"
	maxResults      = 20
)

// SearchResult is one hit of a web search.
type SearchResult struct {
	Title       string `json:"title" msgpack:"title"`
	Description string `json:"description" msgpack:"description"`
	Link        string `json:"link" msgpack:"link"`
}

// Searcher queries the DuckDuckGo HTML endpoint and memoizes results per
// query.
type Searcher struct {
	client    *http.Client
	cache     *cache.Cache
	ttl       time.Duration
	endpoint  string
	userAgent func() string
}

// NewSearcher returns a Searcher caching results in the web_search namespace of c.
func NewSearcher(c *cache.Cache, ttl time.Duration, userAgent string) *Searcher {
	return &Searcher{
		client:    &http.Client{Timeout: 15 * time.Second},
		cache:     c.Namespaced(SearchNamespace),
		ttl:       ttl,
		endpoint:  defaultEndpoint,
		userAgent: userAgentFunc(userAgent),
	}
}

// Close releases the Searcher's view of the cache.
func (s *Searcher) Close() error { return s.cache.Close() }

// Search returns at most limit results for query. Results are cached per
// query regardless of limit.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 || limit > maxResults {
		limit = 10
	}
	results, err := cache.Wrap(ctx, s.cache, q, s.ttl, func(ctx context.Context) ([]SearchResult, error) {
		return s.query(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Searcher) query(ctx context.Context, q string) ([]SearchResult, error) {
	values := url.Values{"q": {q}, "kl": {"us-en"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseResults(doc, maxResults), nil
}

func parseResults(doc *goquery.Document, limit int) []SearchResult {
	results := make([]SearchResult, 0, limit)
	doc.Find("div.result.web-result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		a := s.Find("a.result__a").First()
		r := SearchResult{
			Title:       singleLine(a.Text()),
			Description: singleLine(s.Find("a.result__snippet").First().Text()),
			Link:        resultURL(strings.TrimSpace(a.AttrOr("href", ""))),
		}
		if r.Title != "" && r.Link != "" {
			results = append(results, r)
		}
		return len(results) < limit
	})
	if len(results) > 0 {
		return results
	}

	// Layout changed: fall back to bare result anchors.
	doc.Find("a.result__a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		results = append(results, SearchResult{
			Title:       singleLine(a.Text()),
			Description: singleLine(a.Parents().Find("a.result__snippet").First().Text()),
			Link:        resultURL(strings.TrimSpace(a.AttrOr("href", ""))),
		})
		return len(results) < limit
	})
	return results
}

// resultURL unwraps DuckDuckGo redirect links
// (//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com&rut=...) to the
// target URL. Anything else is returned unchanged.
func resultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	// Query() has already unescaped the parameter.
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// singleLine trims and collapses internal whitespace/newlines to single spaces.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
