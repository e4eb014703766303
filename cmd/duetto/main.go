package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duetto/internal/ai"
	"duetto/internal/collectors"
	"duetto/internal/config"
	"duetto/internal/engine"
	"duetto/internal/hub"
	"duetto/internal/logger"
	"duetto/internal/models"
	"duetto/internal/notify"
	"duetto/internal/pipeline"
	"duetto/internal/server"
	"duetto/internal/tickers"
)

// recentCap is the size of the recent-alert ring served on
// /alerts/recent.
const recentCap = 100

// dedupCap is the shared pipeline dedup window across all collectors.
const dedupCap = 1000

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := tickers.New(tickers.Options{UserAgent: cfg.SECUserAgent})

	cols := buildCollectors(cfg, resolver)
	if len(cols) == 0 {
		log.Println("Warning: no collectors enabled; serving status endpoints only")
	}

	dedup, err := pipeline.NewDedup(dedupCap)
	if err != nil {
		log.Fatalf("CRITICAL: %v", err)
	}
	chain := pipeline.NewChain(
		dedup,
		pipeline.NewClassifier(cfg.FilterNoise),
		pipeline.NewPriorityFilter(models.PriorityLow, cfg.FilterCatalysts),
	)

	fanout := buildFanout(ctx, cfg)

	h := hub.New(recentCap)
	eng := engine.New(resolver, chain, h, fanout, cols...)
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("CRITICAL: engine start: %v", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("Shutdown signal received")
		cancel()
	}()

	srv := server.New(cfg.ServerHost, cfg.ServerPort, h, eng)
	if err := srv.Run(ctx); err != nil {
		log.Printf("ERROR: server: %v", err)
		cancel()
		eng.Stop()
		os.Exit(1)
	}
	eng.Stop()
}

// buildCollectors instantiates every collector the configuration
// enables.
func buildCollectors(cfg *config.Config, resolver *tickers.Resolver) []collectors.Collector {
	var cols []collectors.Collector

	if feeds := collectors.EnabledFeeds(cfg.Monitor8K, cfg.MonitorS3, cfg.MonitorForm4, cfg.Monitor6K); len(feeds) > 0 {
		ff, err := collectors.NewFilingFeed(collectors.FilingFeedConfig{
			Feeds:        feeds,
			UserAgent:    cfg.SECUserAgent,
			PollInterval: time.Duration(cfg.SECPollInterval) * time.Second,
			RateLimit:    time.Duration(cfg.SECRateLimit * float64(time.Second)),
		}, resolver)
		if err != nil {
			log.Fatalf("CRITICAL: filing feed: %v", err)
		}
		cols = append(cols, ff)
	}

	if cfg.FDAEnabled {
		ap, err := collectors.NewApprovals(collectors.ApprovalsConfig{
			UserAgent:    cfg.SECUserAgent,
			PollInterval: time.Duration(cfg.FDAPollInterval) * time.Second,
		})
		if err != nil {
			log.Fatalf("CRITICAL: approvals scraper: %v", err)
		}
		cols = append(cols, ap)
	}

	if cfg.TVEnabled && len(cfg.TVSymbols) > 0 {
		qs, err := collectors.NewQuoteStream(collectors.QuoteStreamConfig{
			Symbols:      cfg.TVSymbols,
			ThresholdPct: cfg.TVThresholdPct,
		}, resolver)
		if err != nil {
			log.Fatalf("CRITICAL: quote stream: %v", err)
		}
		cols = append(cols, qs)
	}

	return cols
}

// buildFanout instantiates every notification channel with usable
// credentials. A channel missing credentials is disabled with an info
// log, never an error.
func buildFanout(ctx context.Context, cfg *config.Config) *notify.Fanout {
	var notifiers []notify.Notifier

	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		bot := notify.NewChatBot(cfg.TelegramBotToken, cfg.TelegramChatID)
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := bot.Probe(probeCtx); err != nil {
			log.Printf("Warning: telegram bot probe failed: %v", err)
		}
		cancel()
		notifiers = append(notifiers, bot)
	} else {
		log.Println("Telegram notifier disabled: missing credentials")
	}

	if cfg.SMTPHost != "" && cfg.EmailFrom != "" && len(cfg.EmailTo) > 0 {
		notifiers = append(notifiers, notify.NewEmail(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom, cfg.EmailTo))
	} else {
		log.Println("Email notifier disabled: missing SMTP settings")
	}

	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookFormat))
	} else {
		log.Println("Webhook notifier disabled: no URL configured")
	}

	if cfg.FeishuWebhookURL != "" {
		notifiers = append(notifiers, notify.NewRichCard(cfg.FeishuWebhookURL))
	} else {
		log.Println("Feishu notifier disabled: no webhook URL configured")
	}

	var enricher notify.Enricher
	if cfg.AIEnabled {
		if p := ai.FromConfig(cfg.AIProvider, cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel); p != nil {
			log.Printf("AI enrichment enabled (%s)", p.Name())
			enricher = p
		}
	}

	fanout := notify.NewFanout(models.ParsePriority(cfg.NotifyMinPriority), enricher, notifiers...)
	if chans := fanout.Channels(); len(chans) > 0 {
		log.Printf("Notification channels: %v (min priority %s)", chans, cfg.NotifyMinPriority)
	}
	return fanout
}
