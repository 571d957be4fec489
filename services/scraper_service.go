package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// ScraperService fetches the configured school pages and turns them into one
// block of cleaned text for the completion prompt.
type ScraperService interface {
	ScrapeAll(ctx context.Context) string
	ScrapePage(ctx context.Context, url string) (string, error)
}

// scraperServiceImpl holds the shared HTTP client and the immutable page list.
type scraperServiceImpl struct {
	httpClient *http.Client
	pages      []string
}

// NewScraperService creates a scraper over the given pages. The client is the
// process-wide keep-alive client so connections are reused across pages and
// across requests.
func NewScraperService(client *http.Client, pages []string) ScraperService {
	return &scraperServiceImpl{
		httpClient: client,
		pages:      pages,
	}
}

// ScrapeAll fetches every configured page concurrently and joins the results.
// A page that fails contributes an empty segment; the output always carries one
// marker per page, in configuration order, no matter which fetch finishes
// first. The joined text has no whitespace runs and no leading or trailing
// whitespace.
func (s *scraperServiceImpl) ScrapeAll(ctx context.Context) string {
	log.Printf("SERVICE: Fetching all %d pages in parallel...", len(s.pages))

	segments := make([]string, len(s.pages))
	var group errgroup.Group
	for i, pageURL := range s.pages {
		group.Go(func() error {
			text, err := s.ScrapePage(ctx, pageURL)
			if err != nil {
				log.Printf("SERVICE: Failed to scrape %s: %v", pageURL, err)
				text = ""
			}
			segments[i] = fmt.Sprintf("--- Page: %s --- %s", pageURL, text)
			return nil
		})
	}
	// Tasks swallow their own errors, so Wait is purely the join barrier.
	_ = group.Wait()

	return collapseWhitespace(strings.Join(segments, " "))
}

// ScrapePage fetches one URL and extracts its visible body text.
func (s *scraperServiceImpl) ScrapePage(ctx context.Context, pageURL string) (string, error) {
	log.Printf("SERVICE: Scraping: %s", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", pageURL, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch of %s returned status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	return ExtractVisibleText(doc), nil
}

// ExtractVisibleText walks every element under <body> in document order and
// keeps its trimmed text when it is longer than two characters and is not
// copyright or footer boilerplate. A parent's text includes its descendants'
// text, so nested elements repeat; that duplication is accepted.
func ExtractVisibleText(doc *goquery.Document) string {
	var parts []string
	doc.Find("body *").Each(func(_ int, sel *goquery.Selection) {
		content := strings.TrimSpace(sel.Text())
		if content == "" || len([]rune(content)) <= 2 {
			return
		}
		if strings.Contains(content, "©") || strings.Contains(content, "Powered by") {
			return
		}
		parts = append(parts, content)
	})
	return strings.Join(parts, " ")
}

// collapseWhitespace reduces every run of whitespace to a single space and
// trims both ends.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
