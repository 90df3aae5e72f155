// Package discovery crawls index pages for links to board snapshots.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Config holds discovery worker configuration.
type Config struct {
	IndexURLs []string
	// LinkPattern selects snapshot links among the anchors of an index
	// page. It is matched against the resolved absolute URL.
	LinkPattern  string
	RequestDelay time.Duration
	// MaxLinks caps the links taken from each index page (0 = unlimited).
	MaxLinks  int
	UserAgent string
}

func DefaultConfig() Config {
	return Config{
		LinkPattern:  `\.html?$`,
		RequestDelay: 500 * time.Millisecond,
		UserAgent:    "2048ish-scraper/1.0",
	}
}

// Worker discovers snapshot URLs not seen before.
type Worker struct {
	config   Config
	client   *http.Client
	linkRe   *regexp.Regexp
	knownIDs map[string]bool
	knownMu  sync.RWMutex
	logger   *slog.Logger
}

func NewWorker(config Config, existingIDs map[string]bool, logger *slog.Logger) (*Worker, error) {
	if existingIDs == nil {
		existingIDs = make(map[string]bool)
	}
	if logger == nil {
		logger = slog.Default()
	}
	pattern := config.LinkPattern
	if pattern == "" {
		pattern = DefaultConfig().LinkPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("link pattern: %w", err)
	}
	return &Worker{
		config:   config,
		client:   &http.Client{Timeout: 30 * time.Second},
		linkRe:   re,
		knownIDs: existingIDs,
		logger:   logger,
	}, nil
}

// Discover walks every index page and sends unseen snapshot URLs on out.
// It returns when all pages are done or ctx is cancelled.
func (w *Worker) Discover(ctx context.Context, out chan<- string) error {
	total := 0
	for i, indexURL := range w.config.IndexURLs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && w.config.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RequestDelay):
			}
		}

		links, err := w.IndexLinks(ctx, indexURL)
		if err != nil {
			w.logger.Warn("index page", "url", indexURL, "error", err)
			continue
		}
		if w.config.MaxLinks > 0 && len(links) > w.config.MaxLinks {
			links = links[:w.config.MaxLinks]
		}

		fresh := 0
		for _, link := range links {
			if w.markKnown(link) {
				continue
			}
			select {
			case out <- link:
				fresh++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		w.logger.Info("index page done", "url", indexURL, "links", len(links), "new", fresh)
		total += fresh
	}
	w.logger.Info("discovery complete", "new", total)
	return nil
}

// markKnown records link and reports whether it was already known.
func (w *Worker) markKnown(link string) bool {
	w.knownMu.Lock()
	defer w.knownMu.Unlock()
	if w.knownIDs[link] {
		return true
	}
	w.knownIDs[link] = true
	return false
}

// IndexLinks fetches one index page and returns the matching links in page
// order, resolved against the page URL and deduplicated.
func (w *Worker) IndexLinks(ctx context.Context, indexURL string) ([]string, error) {
	base, err := url.Parse(indexURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return nil, err
	}
	if w.config.UserAgent != "" {
		req.Header.Set("User-Agent", w.config.UserAgent)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		link := abs.String()
		if !w.linkRe.MatchString(link) || seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})
	return links, nil
}

// AddKnownID adds a URL to the known set.
func (w *Worker) AddKnownID(link string) {
	w.knownMu.Lock()
	defer w.knownMu.Unlock()
	w.knownIDs[link] = true
}
