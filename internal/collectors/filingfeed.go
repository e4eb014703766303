package collectors

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"

	"duetto/internal/cache"
	"duetto/internal/models"
	"duetto/internal/tickers"
)

// feedURLFmt is the live-filings ATOM feed, one URL per form type.
const feedURLFmt = "https://www.sec.gov/cgi-bin/browse-edgar?action=getcurrent&type=%s&company=&dateb=&owner=include&count=100&output=atom"

// FeedSpec names one monitored filing feed.
type FeedSpec struct {
	Form string // form type label, e.g. "8-K"
	Kind models.AlertKind
	URL  string
}

// EnabledFeeds builds the feed list from the per-form monitor flags.
func EnabledFeeds(monitor8K, monitorS3, monitorForm4, monitor6K bool) []FeedSpec {
	var feeds []FeedSpec
	add := func(enabled bool, form string, kind models.AlertKind) {
		if enabled {
			feeds = append(feeds, FeedSpec{
				Form: form,
				Kind: kind,
				URL:  fmt.Sprintf(feedURLFmt, url.QueryEscape(form)),
			})
		}
	}
	add(monitor8K, "8-K", models.KindFiling8K)
	add(monitorS3, "S-3", models.KindFilingS3)
	add(monitorForm4, "4", models.KindForm4)
	add(monitor6K, "6-K", models.KindFiling6K)
	return feeds
}

// FilingFeedConfig configures the EDGAR poller. UserAgent is mandatory
// for the upstream regulator.
type FilingFeedConfig struct {
	Feeds        []FeedSpec
	UserAgent    string
	PollInterval time.Duration // between full cycles
	RateLimit    time.Duration // between feed URLs within a cycle
}

// FilingFeed polls the EDGAR live-filings ATOM feeds and emits one
// alert per previously unseen entry.
type FilingFeed struct {
	runner
	cfg      FilingFeedConfig
	resolver *tickers.Resolver
	client   *http.Client
	parser   *gofeed.Parser
	seen     *cache.RecencyCache
}

// NewFilingFeed returns a poller over the configured feeds.
func NewFilingFeed(cfg FilingFeedConfig, resolver *tickers.Resolver) (*FilingFeed, error) {
	seen, err := cache.New(seenCapacity)
	if err != nil {
		return nil, err
	}
	return &FilingFeed{
		cfg:      cfg,
		resolver: resolver,
		client:   &http.Client{Timeout: 30 * time.Second},
		parser:   gofeed.NewParser(),
		seen:     seen,
	}, nil
}

func (f *FilingFeed) Name() string { return "sec_edgar" }

// Start begins polling. Idempotent while running.
func (f *FilingFeed) Start(ctx context.Context) error {
	return f.start(ctx, f.run)
}

// Stop halts polling and closes the alert channel.
func (f *FilingFeed) Stop() error { return f.stop() }

func (f *FilingFeed) run(ctx context.Context) {
	out := f.out
	for {
		for i, feed := range f.cfg.Feeds {
			if i > 0 && !sleep(ctx, f.cfg.RateLimit) {
				return
			}
			if err := f.poll(ctx, out, feed); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Warning: %s feed poll failed: %v", feed.Form, err)
			}
		}
		if !sleep(ctx, f.cfg.PollInterval) {
			return
		}
	}
}

// poll fetches one feed and emits every entry not yet in the recency
// window. Entries that fail to parse are skipped individually.
func (f *FilingFeed) poll(ctx context.Context, out chan<- models.Alert, spec FeedSpec) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return errors.Wrap(err, "build feed request")
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetch feed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("fetch feed: HTTP %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return errors.Wrap(err, "parse feed")
	}

	for _, item := range feed.Items {
		alert := f.alertFromEntry(spec, item)
		if !f.seen.Add(alert.ID) {
			continue
		}
		if !f.emit(ctx, out, alert) {
			return nil
		}
	}
	return nil
}

// filerTitleRe extracts company and CIK from entry titles of the form
// "8-K - ACME CORP (0001234567) (Filer)".
var filerTitleRe = regexp.MustCompile(`- (.+?) \((\d+)\)`)

func (f *FilingFeed) alertFromEntry(spec FeedSpec, item *gofeed.Item) models.Alert {
	company := strings.TrimSpace(item.Title)
	var cik, ticker string
	if m := filerTitleRe.FindStringSubmatch(item.Title); m != nil {
		company = strings.TrimSpace(m[1])
		cik = m[2]
		if f.resolver != nil {
			ticker, _ = f.resolver.CIKToTicker(cik)
		}
	}

	ts := time.Now().UTC()
	if item.UpdatedParsed != nil {
		ts = item.UpdatedParsed.UTC()
	} else if item.PublishedParsed != nil {
		ts = item.PublishedParsed.UTC()
	}

	summary := truncate(stripHTML(item.Description), summaryLimit)

	return models.Alert{
		ID:        models.HashID(item.GUID, item.Title),
		Kind:      spec.Kind,
		Priority:  filingPriority(item.Title + " " + summary),
		Ticker:    ticker,
		Company:   company,
		Title:     spec.Form + ": " + company,
		Summary:   summary,
		URL:       item.Link,
		Source:    "SEC EDGAR",
		Timestamp: ts,
		Raw: map[string]any{
			"form_type": spec.Form,
			"entry_id":  item.GUID,
			"cik":       cik,
		},
	}
}

// Keyword lists for the first-pass priority assigned at ingest. The
// catalyst classifier downstream may upgrade it further.
var (
	highKeywords = []string{
		"merger", "acquisition", "acquire", "buyout", "tender offer",
		"definitive agreement", "fda approval", "fda clearance",
		"bankruptcy", "chapter 11", "chapter 7",
	}
	mediumKeywords = []string{
		"offering", "placement", "securities", "registration",
		"partnership", "license", "contract", "agreement",
	}
)

func filingPriority(text string) models.Priority {
	text = strings.ToLower(text)
	for _, kw := range highKeywords {
		if strings.Contains(text, kw) {
			return models.PriorityHigh
		}
	}
	for _, kw := range mediumKeywords {
		if strings.Contains(text, kw) {
			return models.PriorityMedium
		}
	}
	return models.PriorityLow
}
