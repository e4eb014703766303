package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"duetto/internal/cache"
	"duetto/internal/models"
	"duetto/internal/tickers"
)

const (
	quoteWSURL   = "wss://data.tradingview.com/socket.io/websocket"
	quoteOrigin  = "https://data.tradingview.com"
	reconnectGap = 5 * time.Second
)

// quoteFields are the per-symbol values the stream is asked to push.
var quoteFields = []string{"ch", "chp", "lp", "description", "currency_code", "rchp", "rtc"}

// QuoteStreamConfig configures the TradingView collector. URL is
// overridable for tests.
type QuoteStreamConfig struct {
	URL          string
	Symbols      []string // exchange-prefixed, e.g. NASDAQ:AAPL
	ThresholdPct float64  // absolute percent move that triggers an alert
}

// QuoteStream keeps a persistent websocket to the quote provider and
// emits an alert whenever a symbol's percent change crosses the
// configured threshold.
type QuoteStream struct {
	runner
	cfg          QuoteStreamConfig
	threshold    decimal.Decimal
	resolver     *tickers.Resolver
	dialer       *websocket.Dialer
	quoteSession string // one per collector instance
	seen         *cache.RecencyCache
	now          func() time.Time
}

// NewQuoteStream returns a collector watching the configured symbols.
func NewQuoteStream(cfg QuoteStreamConfig, resolver *tickers.Resolver) (*QuoteStream, error) {
	if cfg.URL == "" {
		cfg.URL = quoteWSURL
	}
	seen, err := cache.New(seenCapacity)
	if err != nil {
		return nil, err
	}
	return &QuoteStream{
		cfg:          cfg,
		threshold:    decimal.NewFromFloat(cfg.ThresholdPct),
		resolver:     resolver,
		dialer:       &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		quoteSession: "qs_" + randomSession(),
		seen:         seen,
		now:          time.Now,
	}, nil
}

func (q *QuoteStream) Name() string { return "tradingview" }

// Start opens the stream. Idempotent while running.
func (q *QuoteStream) Start(ctx context.Context) error {
	return q.start(ctx, q.run)
}

// Stop closes the stream and the alert channel.
func (q *QuoteStream) Stop() error { return q.stop() }

// run keeps one connection alive, reconnecting after a fixed gap on
// any error or disconnect.
func (q *QuoteStream) run(ctx context.Context) {
	out := q.out
	for {
		if err := q.session(ctx, out); err != nil && ctx.Err() == nil {
			log.Printf("Warning: quote stream disconnected: %v", err)
		}
		if !sleep(ctx, reconnectGap) {
			return
		}
	}
}

// session dials, subscribes and reads frames until the connection or
// the context dies.
func (q *QuoteStream) session(ctx context.Context, out chan<- models.Alert) error {
	header := http.Header{"Origin": {quoteOrigin}}
	conn, _, err := q.dialer.DialContext(ctx, q.cfg.URL, header)
	if err != nil {
		return errors.Wrap(err, "dial quote stream")
	}
	defer conn.Close()

	// Unblock the read loop the moment the collector is stopped.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-connDone:
		}
	}()

	if err := q.subscribe(conn); err != nil {
		return err
	}
	log.Printf("Quote stream connected, watching %d symbols", len(q.cfg.Symbols))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read quote frame")
		}
		q.handleMessage(ctx, conn, out, string(msg))
		if ctx.Err() != nil {
			return nil
		}
	}
}

// subscribe performs the handshake: auth, sessions, field list, then
// one quote_add_symbols per configured symbol.
func (q *QuoteStream) subscribe(conn *websocket.Conn) error {
	chartSession := "cs_" + randomSession()
	msgs := [][]any{
		{"set_auth_token", []any{"unauthorized_user_token"}},
		{"chart_create_session", []any{chartSession, ""}},
		{"quote_create_session", []any{q.quoteSession}},
	}
	fields := []any{q.quoteSession}
	for _, f := range quoteFields {
		fields = append(fields, f)
	}
	msgs = append(msgs, []any{"quote_set_fields", fields})
	for _, sym := range q.cfg.Symbols {
		msgs = append(msgs, []any{"quote_add_symbols", []any{q.quoteSession, sym, map[string]any{"flags": []string{"force_permission"}}}})
	}
	for _, m := range msgs {
		frame, err := encodeFrame(m[0].(string), m[1].([]any))
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return errors.Wrap(err, "send subscribe frame")
		}
	}
	return nil
}

// handleMessage splits an inbound message into frames, echoes
// heartbeats verbatim and turns qsd payloads into alerts.
func (q *QuoteStream) handleMessage(ctx context.Context, conn *websocket.Conn, out chan<- models.Alert, msg string) {
	for _, part := range splitFrames(msg) {
		if strings.HasPrefix(part, "~h~") {
			framed := fmt.Sprintf("~m~%d~m~%s", len(part), part)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(framed)); err != nil {
				log.Printf("Warning: heartbeat echo failed: %v", err)
			}
			continue
		}
		alert, ok := q.alertFromFrame(part)
		if !ok {
			continue
		}
		if !q.seen.Add(alert.ID) {
			continue
		}
		q.emit(ctx, out, alert)
	}
}

// qsdFrame is the quote-session-data envelope: p[0] is the session id,
// p[1] the symbol payload.
type qsdFrame struct {
	M string            `json:"m"`
	P []json.RawMessage `json:"p"`
}

type qsdPayload struct {
	Name   string `json:"n"`
	Values struct {
		ChangePct *float64 `json:"chp"`
		LastPrice *float64 `json:"lp"`
	} `json:"v"`
}

// alertFromFrame parses one JSON frame and applies the move threshold.
func (q *QuoteStream) alertFromFrame(part string) (models.Alert, bool) {
	var frame qsdFrame
	if err := json.Unmarshal([]byte(part), &frame); err != nil || frame.M != "qsd" || len(frame.P) < 2 {
		return models.Alert{}, false
	}
	var payload qsdPayload
	if err := json.Unmarshal(frame.P[1], &payload); err != nil || payload.Name == "" || payload.Values.ChangePct == nil {
		return models.Alert{}, false
	}

	chp := decimal.NewFromFloat(*payload.Values.ChangePct)
	if chp.Abs().LessThan(q.threshold) {
		return models.Alert{}, false
	}
	return q.alertFromQuote(payload.Name, chp, payload.Values.LastPrice), true
}

// alertFromQuote builds the PriceMove alert for a threshold-crossing
// change.
func (q *QuoteStream) alertFromQuote(symbol string, chp decimal.Decimal, lastPrice *float64) models.Alert {
	ticker := symbol
	if _, after, found := strings.Cut(symbol, ":"); found {
		ticker = after
	}
	ticker = strings.ToUpper(ticker)

	company := ticker
	if q.resolver != nil {
		if name, ok := q.resolver.TickerToName(ticker); ok {
			company = name
		}
	}

	direction := "UP"
	if chp.IsNegative() {
		direction = "DOWN"
	}
	magnitude := chp.Abs().StringFixed(2)

	priority := models.PriorityMedium
	if chp.Abs().GreaterThan(decimal.NewFromInt(20)) {
		priority = models.PriorityHigh
	}

	summary := fmt.Sprintf("%s moved %s%% from the previous close", ticker, chp.StringFixed(2))
	raw := map[string]any{"symbol": symbol, "change_pct": chp.InexactFloat64()}
	if lastPrice != nil {
		lp := decimal.NewFromFloat(*lastPrice)
		summary += fmt.Sprintf(", last price %s", lp.String())
		raw["last_price"] = *lastPrice
	}

	ts := q.now().UTC()
	return models.Alert{
		ID:        fmt.Sprintf("tv_%s_%s_%d", ticker, ts.Format("20060102150405"), chp.Abs().Mul(decimal.NewFromInt(100)).IntPart()),
		Kind:      models.KindPriceMove,
		Priority:  priority,
		Ticker:    ticker,
		Company:   company,
		Title:     fmt.Sprintf("Stock Move: %s %s %s%%", ticker, direction, magnitude),
		Summary:   summary,
		URL:       "https://www.tradingview.com/symbols/" + strings.ReplaceAll(symbol, ":", "-") + "/",
		Source:    "TradingView",
		Timestamp: ts,
		Raw:       raw,
	}
}

// encodeFrame wraps one method call in the length-prefixed wire form
// "~m~<len>~m~<json>".
func encodeFrame(method string, params []any) ([]byte, error) {
	body, err := json.Marshal(map[string]any{"m": method, "p": params})
	if err != nil {
		return nil, errors.Wrap(err, "encode quote frame")
	}
	return []byte(fmt.Sprintf("~m~%d~m~%s", len(body), body)), nil
}

// framePrefixRe matches the "~m~<len>~m~" separators between frames.
var framePrefixRe = regexp.MustCompile(`~m~\d+~m~`)

// splitFrames cuts a raw message into its frame payloads.
func splitFrames(msg string) []string {
	parts := framePrefixRe.Split(msg, -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

const sessionAlphabet = "abcdefghijklmnopqrstuvwxyz"

// randomSession returns the 12-lowercase-char id the protocol expects
// after its cs_/qs_ prefixes.
func randomSession() string {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteByte(sessionAlphabet[rand.Intn(len(sessionAlphabet))])
	}
	return b.String()
}
