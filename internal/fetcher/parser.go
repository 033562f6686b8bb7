package fetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

// detailPathPattern matches detail-page paths and captures the slug.
// Pagination, category and tag paths do not match.
var detailPathPattern = regexp.MustCompile(`^/clips/([a-z0-9][a-z0-9_-]*)/?$`)

func parseListPage(base *url.URL, body []byte) ([]ingest.WorkItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	seen := make(map[string]struct{})
	var items []ingest.WorkItem
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Host != base.Host {
			return
		}
		m := detailPathPattern.FindStringSubmatch(abs.Path)
		if m == nil {
			return
		}
		slug := m[1]
		if _, dup := seen[slug]; dup {
			return
		}
		seen[slug] = struct{}{}
		abs.Fragment = ""
		abs.RawQuery = ""
		items = append(items, ingest.WorkItem{URL: abs.String(), Slug: slug})
	})
	return items, nil
}

func parseDetailPage(base *url.URL, redirectURL, pageURL string, body []byte) (ingest.RawRecord, error) {
	pu, err := url.Parse(pageURL)
	if err != nil {
		return ingest.RawRecord{}, ingest.Permanentf("invalid detail url %q", pageURL)
	}
	m := detailPathPattern.FindStringSubmatch(pu.Path)
	if m == nil {
		return ingest.RawRecord{}, ingest.Permanentf("cannot derive slug from %q", pageURL)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ingest.RawRecord{}, fmt.Errorf("parse html: %w", err)
	}

	record := ingest.RawRecord{
		Slug:       m[1],
		Title:      extractTitle(doc),
		CoverURL:   extractCover(doc, base),
		PreviewURL: extractPreview(doc, base),
		Tags:       extractTags(doc),
	}
	if record.PreviewURL == "" {
		return ingest.RawRecord{}, ingest.Permanentf("preview media missing for %s", pageURL)
	}

	token, _ := doc.Find("#download-button").Attr("data-token")
	token = strings.TrimSpace(token)
	if token == "" {
		return ingest.RawRecord{}, ingest.Permanentf("download token missing for %s", pageURL)
	}
	record.DownloadURL = buildDownloadURL(redirectURL, token)

	return record, nil
}

func extractTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("h1.entry-title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	return title
}

// extractCover prefers the video poster attribute; the first image on the
// page is the fallback.
func extractCover(doc *goquery.Document, base *url.URL) string {
	if poster, ok := doc.Find("video[poster]").First().Attr("poster"); ok {
		return absolute(base, poster)
	}
	if src, ok := doc.Find("img[src]").First().Attr("src"); ok {
		return absolute(base, src)
	}
	return ""
}

// extractPreview prefers a .webm source over whatever comes first.
func extractPreview(doc *goquery.Document, base *url.URL) string {
	var first, webm string
	doc.Find("video source[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" {
			return
		}
		if first == "" {
			first = src
		}
		if webm == "" && strings.HasSuffix(strings.ToLower(src), ".webm") {
			webm = src
		}
	})
	if webm != "" {
		return absolute(base, webm)
	}
	if first != "" {
		return absolute(base, first)
	}
	if src, ok := doc.Find("video[src]").First().Attr("src"); ok {
		return absolute(base, strings.TrimSpace(src))
	}
	return ""
}

func extractTags(doc *goquery.Document) []string {
	var tags []string
	doc.Find(".tag-list a").Each(func(_ int, sel *goquery.Selection) {
		if tag := strings.TrimSpace(sel.Text()); tag != "" {
			tags = append(tags, tag)
		}
	})
	return tags
}

// absolute normalizes root-relative URLs against the site base.
func absolute(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func buildDownloadURL(redirectURL, token string) string {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return redirectURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
