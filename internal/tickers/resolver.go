// Package tickers maps regulator identifiers (CIK) to tickers and
// company names using the public company_tickers.json table. The table
// is fetched once, cached on disk, and served from memory afterwards.
package tickers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"duetto/internal/storage"
)

// TableURL is the public source of the CIK/ticker/name table.
const TableURL = "https://www.sec.gov/files/company_tickers.json"

// CacheFileName is the on-disk name under the user cache directory.
const CacheFileName = "company_tickers.json"

// Match is one company hit returned by SearchByName.
type Match struct {
	Ticker string
	CIK    string
	Name   string
}

// Options configure a Resolver. Zero values fall back to the public
// table URL, the per-user cache path and a 30s HTTP client.
type Options struct {
	URL       string
	UserAgent string
	CachePath string
	Client    *http.Client
}

// Resolver answers CIK/ticker/name lookups. Safe for concurrent use;
// loading is single-flighted so parallel first users share one fetch.
type Resolver struct {
	url       string
	userAgent string
	cachePath string
	client    *http.Client

	group singleflight.Group

	mu          sync.RWMutex
	loaded      bool
	cikToTicker map[string]string
	cikToName   map[string]string
	tickerToCIK map[string]string
}

// New returns an unloaded Resolver. Call Load before the first lookup;
// lookups on an unloaded Resolver simply miss.
func New(opts Options) *Resolver {
	if opts.URL == "" {
		opts.URL = TableURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Resolver{
		url:       opts.URL,
		userAgent: opts.UserAgent,
		cachePath: opts.CachePath,
		client:    opts.Client,
	}
}

// Load populates the maps from the disk cache, falling back to a fetch
// from the table URL. Concurrent callers share a single load.
func (r *Resolver) Load(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	_, err, _ := r.group.Do("load", func() (any, error) {
		return nil, r.load(ctx, false)
	})
	return err
}

// Refresh discards the disk cache and re-fetches the table.
func (r *Resolver) Refresh(ctx context.Context) error {
	_, err, _ := r.group.Do("refresh", func() (any, error) {
		return nil, r.load(ctx, true)
	})
	return err
}

func (r *Resolver) load(ctx context.Context, force bool) error {
	path := r.cachePath
	if path == "" {
		p, err := storage.CachePath(CacheFileName)
		if err != nil {
			return err
		}
		path = p
	}

	var raw []byte
	if !force {
		b, found, err := storage.ReadIfExists(path)
		if err != nil {
			log.Printf("Warning: ticker cache unreadable: %v", err)
		} else if found {
			raw = b
		}
	}

	fetched := false
	if raw == nil {
		b, err := r.fetch(ctx)
		if err != nil {
			return err
		}
		raw = b
		fetched = true
	}

	if err := r.build(raw); err != nil {
		if !fetched {
			// Corrupt cache file; retry from the source.
			b, ferr := r.fetch(ctx)
			if ferr != nil {
				return ferr
			}
			raw = b
			fetched = true
			if err = r.build(raw); err != nil {
				return err
			}
		} else {
			return err
		}
	}

	if fetched {
		if err := storage.WriteAtomic(path, raw); err != nil {
			log.Printf("Warning: could not persist ticker cache: %v", err)
		}
	}
	return nil
}

func (r *Resolver) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build ticker table request")
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch ticker table")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch ticker table: HTTP %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read ticker table")
	}
	return b, nil
}

// build parses the table and swaps in fresh maps. The table is keyed
// by row index: {"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}}.
func (r *Resolver) build(raw []byte) error {
	var rows map[string]struct {
		CIK    json.Number `json:"cik_str"`
		Ticker string      `json:"ticker"`
		Title  string      `json:"title"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return errors.Wrap(err, "parse ticker table")
	}

	cikToTicker := make(map[string]string, len(rows)*2)
	cikToName := make(map[string]string, len(rows)*2)
	tickerToCIK := make(map[string]string, len(rows))
	for _, row := range rows {
		cik := row.CIK.String()
		ticker := strings.ToUpper(row.Ticker)
		// Keyed both raw and zero-padded so feed CIKs match either way.
		for _, key := range []string{cik, padCIK(cik)} {
			cikToTicker[key] = ticker
			cikToName[key] = row.Title
		}
		tickerToCIK[ticker] = cik
	}

	r.mu.Lock()
	r.cikToTicker = cikToTicker
	r.cikToName = cikToName
	r.tickerToCIK = tickerToCIK
	r.loaded = true
	r.mu.Unlock()

	log.Printf("Loaded %d company tickers", len(tickerToCIK))
	return nil
}

// padCIK left-pads a CIK to the canonical 10 digits.
func padCIK(cik string) string {
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

// CIKToTicker resolves a CIK (padded or not) to its ticker.
func (r *Resolver) CIKToTicker(cik string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.cikToTicker[cik]; ok {
		return t, true
	}
	t, ok := r.cikToTicker[padCIK(cik)]
	return t, ok
}

// CIKToName resolves a CIK (padded or not) to the company name.
func (r *Resolver) CIKToName(cik string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.cikToName[cik]; ok {
		return n, true
	}
	n, ok := r.cikToName[padCIK(cik)]
	return n, ok
}

// TickerToCIK resolves a ticker (any case) to its unpadded CIK.
func (r *Resolver) TickerToCIK(ticker string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cik, ok := r.tickerToCIK[strings.ToUpper(ticker)]
	return cik, ok
}

// TickerToName resolves a ticker to the company name.
func (r *Resolver) TickerToName(ticker string) (string, bool) {
	cik, ok := r.TickerToCIK(ticker)
	if !ok {
		return "", false
	}
	return r.CIKToName(cik)
}

// LookupByName returns the ticker for an exact (case-insensitive)
// company name.
func (r *Resolver) LookupByName(name string) (string, bool) {
	want := strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for cik, title := range r.cikToName {
		if strings.ToLower(title) == want {
			return r.cikToTicker[cik], true
		}
	}
	return "", false
}

// SearchByName returns up to limit companies whose name contains the
// query, case-insensitively.
func (r *Resolver) SearchByName(query string, limit int) []Match {
	q := strings.ToLower(query)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Match
	for cik, title := range r.cikToName {
		// Padded duplicates would double every hit.
		if len(cik) == 10 && strings.HasPrefix(cik, "0") {
			continue
		}
		if strings.Contains(strings.ToLower(title), q) {
			out = append(out, Match{Ticker: r.cikToTicker[cik], CIK: cik, Name: title})
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Len returns the number of companies loaded.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tickerToCIK)
}
