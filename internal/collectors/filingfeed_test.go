package collectors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duetto/internal/models"
	"duetto/internal/tickers"
)

const testAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Latest Filings</title>
  <entry>
    <title>8-K - ACME CORP (0001234567) (Filer)</title>
    <link rel="alternate" href="https://www.sec.gov/Archives/edgar/data/1234567/acme-8k.htm"/>
    <summary type="html">&lt;b&gt;Item 1.01&lt;/b&gt; entered into a definitive agreement to merge with Beta Inc</summary>
    <updated>2025-03-14T12:00:00-04:00</updated>
    <id>urn:tag:sec.gov,2008:accession-number=0001234567-25-000001</id>
  </entry>
  <entry>
    <title>8-K - ROUTINE HOLDINGS (0007654321) (Filer)</title>
    <link rel="alternate" href="https://www.sec.gov/Archives/edgar/data/7654321/routine-8k.htm"/>
    <summary type="html">Results of operations and financial condition</summary>
    <updated>2025-03-14T11:00:00-04:00</updated>
    <id>urn:tag:sec.gov,2008:accession-number=0007654321-25-000002</id>
  </entry>
</feed>`

// loadedResolver returns a resolver preloaded from a throwaway cache
// file, so no network is involved.
func loadedResolver(t *testing.T) *tickers.Resolver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "company_tickers.json")
	table := `{"0": {"cik_str": 1234567, "ticker": "ACME", "title": "Acme Corp"}}`
	require.NoError(t, os.WriteFile(path, []byte(table), 0o644))
	r := tickers.New(tickers.Options{CachePath: path})
	require.NoError(t, r.Load(context.Background()))
	return r
}

func newTestFilingFeed(t *testing.T, serverURL string, poll time.Duration) *FilingFeed {
	t.Helper()
	ff, err := NewFilingFeed(FilingFeedConfig{
		Feeds:        []FeedSpec{{Form: "8-K", Kind: models.KindFiling8K, URL: serverURL}},
		UserAgent:    "duetto-test/1.0",
		PollInterval: poll,
	}, loadedResolver(t))
	require.NoError(t, err)
	return ff
}

func collectAlert(t *testing.T, c Collector) models.Alert {
	t.Helper()
	select {
	case alert, ok := <-c.Alerts():
		require.True(t, ok, "alert channel closed early")
		return alert
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for alert")
		return models.Alert{}
	}
}

func TestFilingFeedParsesEntry(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, testAtomFeed)
	}))
	defer srv.Close()

	ff := newTestFilingFeed(t, srv.URL, time.Hour)
	require.NoError(t, ff.Start(context.Background()))
	defer ff.Stop()

	alert := collectAlert(t, ff)
	assert.Equal(t, "duetto-test/1.0", gotUA)
	assert.Equal(t, models.KindFiling8K, alert.Kind)
	assert.Equal(t, "ACME CORP", alert.Company)
	assert.Equal(t, "8-K: ACME CORP", alert.Title)
	assert.Equal(t, "ACME", alert.Ticker)
	assert.Equal(t, models.PriorityHigh, alert.Priority, "definitive agreement should rank high")
	assert.Equal(t, "SEC EDGAR", alert.Source)
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/1234567/acme-8k.htm", alert.URL)

	wantID := models.HashID(
		"urn:tag:sec.gov,2008:accession-number=0001234567-25-000001",
		"8-K - ACME CORP (0001234567) (Filer)",
	)
	assert.Equal(t, wantID, alert.ID)
	assert.Len(t, alert.ID, 16)

	// HTML stripped from the summary.
	assert.NotContains(t, alert.Summary, "<b>")
	assert.Contains(t, alert.Summary, "definitive agreement to merge with Beta Inc")
	assert.Equal(t, time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC), alert.Timestamp)

	second := collectAlert(t, ff)
	assert.Equal(t, models.PriorityLow, second.Priority)
	assert.Equal(t, "ROUTINE HOLDINGS", second.Company)
	assert.Empty(t, second.Ticker, "unknown CIK resolves to no ticker")
}

func TestFilingFeedEmitsEachEntryOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testAtomFeed)
	}))
	defer srv.Close()

	ff := newTestFilingFeed(t, srv.URL, 10*time.Millisecond)
	require.NoError(t, ff.Start(context.Background()))
	defer ff.Stop()

	collectAlert(t, ff)
	collectAlert(t, ff)

	// The feed is re-polled many times over; nothing new may appear.
	select {
	case alert := <-ff.Alerts():
		t.Fatalf("duplicate alert emitted: %s", alert.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFilingFeedSkipsBadFeed(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, testAtomFeed)
	}))
	defer srv.Close()

	ff := newTestFilingFeed(t, srv.URL, 10*time.Millisecond)
	require.NoError(t, ff.Start(context.Background()))
	defer ff.Stop()

	// First cycle fails with a non-2xx; the loop must survive and the
	// next cycle delivers.
	alert := collectAlert(t, ff)
	assert.Equal(t, "ACME CORP", alert.Company)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestFilingFeedStopClosesChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testAtomFeed)
	}))
	defer srv.Close()

	ff := newTestFilingFeed(t, srv.URL, time.Hour)
	require.NoError(t, ff.Start(context.Background()))
	require.NoError(t, ff.Start(context.Background()), "Start must be idempotent")

	collectAlert(t, ff)
	require.NoError(t, ff.Stop())
	require.NoError(t, ff.Stop(), "Stop must be idempotent")

	for range ff.Alerts() {
		// drain whatever was buffered before the close
	}
}

func TestFilingPriorityKeywords(t *testing.T) {
	cases := []struct {
		text string
		want models.Priority
	}{
		{"entered into a definitive agreement", models.PriorityHigh},
		{"announces fda approval of drug", models.PriorityHigh},
		{"files for chapter 11 protection", models.PriorityHigh},
		{"proposed public offering of common stock", models.PriorityMedium},
		{"license and supply agreement signed", models.PriorityMedium},
		{"results of operations", models.PriorityLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, filingPriority(tc.text), tc.text)
	}
}
