package collectors

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"duetto/internal/cache"
	"duetto/internal/models"
)

// approvalsBaseURL is the yearly index page prefix; the year is
// appended as "-<year>".
const approvalsBaseURL = "https://www.fda.gov/drugs/novel-drug-approvals-fda/novel-drug-approvals"

// maxApprovalRows bounds how deep into the index table a cycle looks.
const maxApprovalRows = 20

// ApprovalsConfig configures the FDA scraper. BaseURL is overridable
// for tests.
type ApprovalsConfig struct {
	BaseURL      string
	UserAgent    string
	PollInterval time.Duration
}

// Approvals scrapes the yearly novel-drug-approval index pages and
// emits one high-priority alert per previously unseen table row.
type Approvals struct {
	runner
	cfg    ApprovalsConfig
	client *http.Client
	seen   *cache.RecencyCache
	now    func() time.Time
}

// NewApprovals returns a scraper over the yearly index pages.
func NewApprovals(cfg ApprovalsConfig) (*Approvals, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = approvalsBaseURL
	}
	seen, err := cache.New(seenCapacity)
	if err != nil {
		return nil, err
	}
	return &Approvals{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		seen:   seen,
		now:    time.Now,
	}, nil
}

func (a *Approvals) Name() string { return "fda" }

// Start begins scrape cycles. Idempotent while running.
func (a *Approvals) Start(ctx context.Context) error {
	return a.start(ctx, a.run)
}

// Stop halts scraping and closes the alert channel.
func (a *Approvals) Stop() error { return a.stop() }

func (a *Approvals) run(ctx context.Context) {
	out := a.out
	for {
		a.cycle(ctx, out)
		if !sleep(ctx, a.cfg.PollInterval) {
			return
		}
	}
}

// cycle scans the current year's page, falling back to the previous
// year only when the current one yielded nothing new.
func (a *Approvals) cycle(ctx context.Context, out chan<- models.Alert) {
	year := a.now().Year()
	for _, y := range []int{year, year - 1} {
		n, err := a.scrapeYear(ctx, out, y)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Warning: approvals scrape for %d failed: %v", y, err)
			continue
		}
		if n > 0 {
			return
		}
	}
}

// scrapeYear parses one yearly index page and emits its new rows,
// returning how many alerts were produced.
func (a *Approvals) scrapeYear(ctx context.Context, out chan<- models.Alert, year int) (int, error) {
	pageURL := fmt.Sprintf("%s-%d", a.cfg.BaseURL, year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return 0, errors.Wrap(err, "build approvals request")
	}
	if a.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", a.cfg.UserAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "fetch approvals page")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("fetch approvals page: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, "parse approvals page")
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return 0, errors.Wrap(err, "parse approvals url")
	}

	emitted := 0
	rows := doc.Find("table").First().Find("tr")
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 || i > maxApprovalRows {
			return i <= maxApprovalRows
		}
		alert, ok := a.alertFromRow(base, row)
		if !ok || !a.seen.Add(alert.ID) {
			return true
		}
		if !a.emit(ctx, out, alert) {
			return false
		}
		emitted++
		return true
	})
	return emitted, nil
}

// alertFromRow extracts (drug, ingredient, date, company) from one
// table row. Rows without the four cells are skipped.
func (a *Approvals) alertFromRow(base *url.URL, row *goquery.Selection) (models.Alert, bool) {
	cells := row.Find("td")
	if cells.Length() < 4 {
		return models.Alert{}, false
	}
	drug := strings.TrimSpace(cells.Eq(0).Text())
	ingredient := strings.TrimSpace(cells.Eq(1).Text())
	date := strings.TrimSpace(cells.Eq(2).Text())
	company := strings.TrimSpace(cells.Eq(3).Text())
	if drug == "" || date == "" {
		return models.Alert{}, false
	}

	link := base.String()
	if href, ok := cells.Eq(0).Find("a").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			link = base.ResolveReference(ref).String()
		}
	}

	return models.Alert{
		ID:        models.HashID(drug, date),
		Kind:      models.KindFdaApproval,
		Priority:  models.PriorityHigh,
		Company:   company,
		Title:     "FDA Approval: " + drug,
		Summary:   fmt.Sprintf("%s (%s) approved on %s. Company: %s", drug, ingredient, date, company),
		URL:       link,
		Source:    "FDA",
		Timestamp: a.approvalTime(date),
		Raw: map[string]any{
			"active_ingredient": ingredient,
			"approval_date":     date,
		},
	}, true
}

// approvalTime parses the approval-date cell, falling back to ingest
// time for formats the page has not used before.
func (a *Approvals) approvalTime(date string) time.Time {
	for _, layout := range []string{"1/2/2006", "01/02/2006", "2006-01-02", "Jan. 2, 2006", "January 2, 2006"} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.UTC()
		}
	}
	return a.now().UTC()
}
