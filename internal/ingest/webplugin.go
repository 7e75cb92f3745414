package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

const (
	defaultCrawlDepth    = 0
	defaultMaxPages      = 10
	maxCrawlPagesCeiling = 200
)

// WebPlugin fetches a URL and optionally crawls same-site links up to a
// depth and page-count limit, deduplicating visited URLs. Each fetched page
// becomes one text unit of markdown-converted body content.
type WebPlugin struct {
	client    *http.Client
	converter *md.Converter
}

// NewWebPlugin creates a WebPlugin using the given HTTP client. A nil client
// gets a default with a conservative timeout.
func NewWebPlugin(client *http.Client) *WebPlugin {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebPlugin{
		client:    client,
		converter: md.NewConverter("", true, nil),
	}
}

func (p *WebPlugin) Name() string { return "web" }

func (p *WebPlugin) Description() string {
	return "Fetches a URL and optionally crawls same-site links into text units"
}

func (p *WebPlugin) Schema() Schema {
	return Schema{
		"depth": {
			Type:        ParamInteger,
			Description: "How many link levels to follow from the start URL (0 = only the start page)",
			Default:     defaultCrawlDepth,
		},
		"max_pages": {
			Type:        ParamInteger,
			Description: "Upper bound on fetched pages across all depths",
			Default:     defaultMaxPages,
		},
		"same_host_only": {
			Type:        ParamBoolean,
			Description: "Restrict crawling to links on the start URL's host",
			Default:     true,
		},
	}
}

type crawlTarget struct {
	url   string
	depth int
}

func (p *WebPlugin) Ingest(ctx context.Context, src Source, params Params) ([]TextUnit, error) {
	startURL := strings.TrimSpace(src.URL)
	if startURL == "" {
		return nil, invalidParam("url", "web plugin requires a source URL")
	}
	base, err := url.Parse(startURL)
	if err != nil || !base.IsAbs() {
		return nil, invalidParam("url", fmt.Sprintf("not an absolute URL: %q", startURL))
	}

	depth := params.Int("depth")
	maxPages := params.Int("max_pages")
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if maxPages > maxCrawlPagesCeiling {
		maxPages = maxCrawlPagesCeiling
	}
	sameHostOnly := params.Bool("same_host_only")

	visited := make(map[string]bool)
	queue := []crawlTarget{{url: normalizeURL(base), depth: 0}}
	var units []TextUnit
	fetched := 0

	for len(queue) > 0 && fetched < maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target := queue[0]
		queue = queue[1:]
		if visited[target.url] {
			continue
		}
		visited[target.url] = true

		pageText, links, err := p.fetchPage(ctx, target.url)
		fetched++
		if err != nil {
			// The start page failing means the source is unreachable; a
			// broken link deeper in the crawl is skipped.
			if len(units) == 0 && target.depth == 0 {
				return nil, err
			}
			continue
		}

		if strings.TrimSpace(pageText) != "" {
			units = append(units, TextUnit{
				Text:   pageText,
				Source: SourceMeta{URL: target.url, Filename: base.Host},
			})
		}

		if target.depth >= depth {
			continue
		}
		for _, link := range links {
			resolved := resolveLink(base, link, sameHostOnly)
			if resolved == "" || visited[resolved] {
				continue
			}
			queue = append(queue, crawlTarget{url: resolved, depth: target.depth + 1})
		}
	}

	return units, nil
}

// fetchPage retrieves one URL and returns its markdown text plus the raw
// href values discovered on the page.
func (p *WebPlugin) fetchPage(ctx context.Context, pageURL string) (string, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil, sourceUnavailable(pageURL, err)
	}
	req.Header.Set("User-Agent", "mindmesh-ingest/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", nil, sourceUnavailable(pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, sourceUnavailable(pageURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", nil, domain.NewDomainErrorWithCause(domain.ErrCodeParseError,
			fmt.Sprintf("%s: failed to parse HTML", pageURL), domain.ErrParseError)
	}

	doc.Find("script, style, nav, header, footer, noscript").Remove()

	body := doc.Find("body")
	html, err := body.Html()
	if err != nil {
		html, _ = doc.Html()
	}
	text, err := p.converter.ConvertString(html)
	if err != nil {
		// Markdown conversion is best-effort; fall back to stripped text.
		text = body.Text()
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "#") {
			return
		}
		links = append(links, href)
	})

	return text, links, nil
}

// resolveLink resolves href against base and returns the normalized absolute
// URL, or "" when the link should not be followed.
func resolveLink(base *url.URL, href string, sameHostOnly bool) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	if sameHostOnly && resolved.Host != base.Host {
		return ""
	}
	return normalizeURL(resolved)
}

// normalizeURL strips fragments so the visited set deduplicates anchor
// variants of the same page.
func normalizeURL(u *url.URL) string {
	clone := *u
	clone.Fragment = ""
	return strings.TrimSuffix(clone.String(), "/")
}

func sourceUnavailable(source string, err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeSourceUnavailable,
		fmt.Sprintf("failed to fetch %s", source),
		wrapOr(err, domain.ErrSourceUnavailable))
}
