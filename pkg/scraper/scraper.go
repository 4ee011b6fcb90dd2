package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/pagesearch/internal/models"
	"github.com/xhad/pagesearch/internal/types"
	"github.com/xhad/pagesearch/pkg/config"
	"golang.org/x/time/rate"
)

const (
	// FragmentSelector matches the elements a page is indexed by.
	FragmentSelector = "h1, h2, h3, h4, h5, h6, p"

	// RefClassPrefix prefixes the class written onto every matched element.
	RefClassPrefix = "element-ref-"
)

var ErrUnsupportedURL = errors.New("unsupported URL")

var _ types.PageSource = (*Page)(nil)

type ScraperConfig struct {
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	UserAgent  string
	HTTPClient *http.Client
}

// ConfigFromApp maps the application config onto a ScraperConfig.
func ConfigFromApp(cfg *config.Config) ScraperConfig {
	return ScraperConfig{
		Timeout:   cfg.Scraper.Timeout,
		RateLimit: cfg.Scraper.RateLimit,
		UserAgent: cfg.Scraper.UserAgent,
	}
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %v", config.RateLimit)
	}
	if config.UserAgent == "" {
		config.UserAgent = "pagesearch/1.0"
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Scraper{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Fetch downloads one page and extracts its fragments.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, pageURL)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, pageURL)
	}

	return Parse(u.String(), resp.Body)
}

// Parse reads an HTML document and extracts its fragments. sourceURL is only
// recorded on the page.
func Parse(sourceURL string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	return NewPage(sourceURL, doc), nil
}

// Page is a parsed document whose heading and paragraph elements carry
// reference classes. It implements types.PageSource.
type Page struct {
	URL        string
	Title      string
	RobotsMeta string
	Doc        *goquery.Document

	fragments []models.TextFragment
}

// NewPage tags the elements of doc and collects their text in document order.
func NewPage(sourceURL string, doc *goquery.Document) *Page {
	robots, _ := doc.Find(`meta[name="robots"]`).Attr("content")
	return &Page{
		URL:        sourceURL,
		Title:      cleanContent(doc.Find("title").First().Text()),
		RobotsMeta: robots,
		Doc:        doc,
		fragments:  extractFragments(doc),
	}
}

// Fragments returns the page fragments. The slice is a copy.
func (p *Page) Fragments(ctx context.Context) ([]models.TextFragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]models.TextFragment(nil), p.fragments...), nil
}

func extractFragments(doc *goquery.Document) []models.TextFragment {
	var fragments []models.TextFragment

	// Filtering "body *" keeps document order across the mixed tag set.
	doc.Find("body *").Filter(FragmentSelector).Each(func(i int, sel *goquery.Selection) {
		handle := fmt.Sprintf("%s%d", RefClassPrefix, i)
		sel.AddClass(handle)

		text := cleanContent(sel.Text())
		if text == "" {
			return
		}

		fragments = append(fragments, models.TextFragment{
			ID:            handle,
			Type:          models.FragmentType(goquery.NodeName(sel)),
			Text:          text,
			SequenceIndex: i,
		})
	})

	return fragments
}

func cleanContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}
