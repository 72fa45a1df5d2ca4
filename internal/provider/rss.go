package provider

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/kjstillabower/spacewx-feed-service/internal/models"
	"github.com/kjstillabower/spacewx-feed-service/internal/store"
)

// Feed formats.
const (
	FormatFeed      = ""     // RSS, Atom or JSON feed
	FormatHTMLTable = "html" // one headline per table row
)

// maxTableRows caps headlines taken from one HTML table page.
const maxTableRows = 15

// minRowText drops header and spacer rows.
const minRowText = 16

// Feed is one headline source.
type Feed struct {
	Name   string
	URL    string
	Format string
}

// DefaultFeeds are the amateur radio news sources.
var DefaultFeeds = []Feed{
	{Name: "HamWeekly", URL: "https://daily.hamweekly.com/atom.xml"},
	{Name: "ARNewsLine", URL: "https://www.arnewsline.org/?format=rss"},
	{Name: "NG3K", URL: "https://www.ng3k.com/Misc/adxo.html", Format: FormatHTMLTable},
}

// RSSConfig lists the feeds to merge.
type RSSConfig struct {
	Feeds   []Feed
	TTL     time.Duration
	Enabled bool
}

// RSSProvider merges headlines from several feeds, in feed order, into one list.
type RSSProvider struct {
	fetcher Fetcher
	store   *store.Snapshot[models.Headlines]
	feeds   []Feed
	ttl     time.Duration
	enabled atomic.Bool
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex // guards latest and the merge-then-update sequence
	latest [][]models.Headline
}

// NewRSSProvider creates a provider publishing to s. A nil Feeds uses DefaultFeeds.
func NewRSSProvider(f Fetcher, s *store.Snapshot[models.Headlines], cfg RSSConfig, logger *zap.Logger) *RSSProvider {
	feeds := cfg.Feeds
	if feeds == nil {
		feeds = DefaultFeeds
	}
	p := &RSSProvider{
		fetcher: f,
		store:   s,
		feeds:   append([]Feed(nil), feeds...),
		ttl:     cfg.TTL,
		logger:  nopIfNil(logger),
		now:     time.Now,
		latest:  make([][]models.Headline, len(feeds)),
	}
	p.enabled.Store(cfg.Enabled)
	return p
}

// Name implements Provider.
func (p *RSSProvider) Name() string {
	return "rss"
}

// SetEnabled turns fetching on or off. Already published headlines are kept.
func (p *RSSProvider) SetEnabled(enabled bool) {
	p.enabled.Store(enabled)
}

// Enabled reports whether Refresh fetches.
func (p *RSSProvider) Enabled() bool {
	return p.enabled.Load()
}

// Refresh implements Provider. It is a no-op while disabled.
func (p *RSSProvider) Refresh(force bool) {
	if !p.Enabled() {
		return
	}
	for i, feed := range p.feeds {
		i, feed := i, feed
		p.fetcher.FetchAsync(feed.URL, func(body []byte) {
			p.onFeed(i, feed, body)
		}, p.ttl, force)
	}
}

func (p *RSSProvider) onFeed(index int, feed Feed, body []byte) {
	if len(body) == 0 {
		fetchFailed(p.logger, p.Name(), feed.URL)
		return
	}
	items, err := parseSource(body, feed)
	if err != nil {
		parseFailed(p.logger, p.Name(), feed.URL, err)
		return
	}
	p.logger.Debug("feed parsed", zap.String("feed", feed.Name), zap.Int("headlines", len(items)))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest[index] = items

	merged := make([]models.Headline, 0, models.MaxHeadlines)
	for _, feedItems := range p.latest {
		for _, h := range feedItems {
			if len(merged) == models.MaxHeadlines {
				break
			}
			merged = append(merged, h)
		}
	}
	p.store.Update(models.Headlines{
		Items:       merged,
		LastUpdated: p.now(),
		Valid:       true,
	})
}

func parseSource(body []byte, feed Feed) ([]models.Headline, error) {
	switch feed.Format {
	case FormatFeed:
		return parseFeed(body, feed.Name)
	case FormatHTMLTable:
		return parseHTMLTable(body, feed.Name)
	default:
		return nil, fmt.Errorf("unknown feed format %q", feed.Format)
	}
}

// parseHTMLTable turns table rows of an HTML page (the NG3K DXpedition
// announcements) into headlines. Cell texts are joined by single spaces; short
// rows are skipped and at most maxTableRows are kept.
func parseHTMLTable(body []byte, source string) ([]models.Headline, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out []models.Headline
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		var parts []string
		cells := row.Find("td, th")
		if cells.Length() == 0 {
			parts = append(parts, row.Text())
		}
		cells.Each(func(_ int, cell *goquery.Selection) {
			parts = append(parts, cell.Text())
		})
		text := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		if len(text) >= minRowText {
			out = append(out, models.Headline{Title: text, Source: source})
		}
		return len(out) < maxTableRows
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("no table rows in %s page", source)
	}
	return out, nil
}

// parseFeed extracts titles from an RSS, Atom or JSON feed. Whitespace runs in
// titles are collapsed and empty titles dropped.
func parseFeed(body []byte, source string) ([]models.Headline, error) {
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, err
	}
	var out []models.Headline
	for _, item := range parsed.Items {
		title := strings.Join(strings.Fields(item.Title), " ")
		if title == "" {
			continue
		}
		h := models.Headline{Title: title, Source: source, Link: item.Link}
		switch {
		case item.PublishedParsed != nil:
			h.Published = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			h.Published = *item.UpdatedParsed
		}
		out = append(out, h)
	}
	return out, nil
}
