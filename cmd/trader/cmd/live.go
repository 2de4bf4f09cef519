package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kbd172102/trading-dashboard/broker"
	"github.com/kbd172102/trading-dashboard/broker/venue"
	"github.com/kbd172102/trading-dashboard/journal"
	"github.com/kbd172102/trading-dashboard/live"
)

const defaultFeedURL = "wss://smartapisocket.angelone.in/smart-stream"

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run the live tick-to-order pipeline",
	Long: `Live connects to the broker's market-data websocket, aggregates ticks
into bars, and trades the breakout strategy on each closed bar.

Credentials come from the environment (a .env file is loaded if
present): TRADER_API_KEY, TRADER_CLIENT_CODE, TRADER_PASSWORD,
TRADER_TOTP_SECRET.`,
	RunE: runLive,
}

var liveDBPath string

func init() {
	rootCmd.AddCommand(liveCmd)
	liveCmd.Flags().StringVar(&liveDBPath, "db", "trader.sqlite", "SQLite journal DB path")
}

func runLive(cmd *cobra.Command, args []string) error {
	// Optional; real deployments set the environment directly.
	godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireVenue(); err != nil {
		return err
	}

	dbPath := liveDBPath
	if cfg.Journal.Type == "sqlite" && cfg.Journal.DBPath != "" {
		dbPath = cfg.Journal.DBPath
	}
	jour, err := journal.NewSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jour.Close()

	client := venue.NewClient(venue.Config{
		BaseURL:       cfg.Venue.BaseURL,
		APIKey:        cfg.Venue.APIKey,
		ClientCode:    cfg.Venue.ClientCode,
		Password:      cfg.Venue.Password,
		Exchange:      cfg.Venue.Exchange,
		TradingSymbol: cfg.Venue.TradingSymbol,
		SymbolToken:   cfg.Venue.SymbolToken,
		TOTP: func() string {
			code, err := venue.TOTPNow(cfg.Venue.TOTPSecret)
			if err != nil {
				log.Printf("[WARN] totp: %v", err)
				return ""
			}
			return code
		},
	}, nil)
	session := broker.NewSessionManager(client, 5*time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cred, err := session.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	log.Printf("[INFO] session established for %s, expires %s",
		cfg.Venue.ClientCode, cred.ExpiresAt().Format(time.RFC3339))

	feedURL := cfg.Venue.FeedURL
	if feedURL == "" {
		feedURL = defaultFeedURL
	}
	feed := live.NewWebsocketFeed(live.FeedConfig{
		URL:       feedURL,
		Token:     cfg.Venue.SymbolToken,
		AuthToken: cred.FeedToken,
		ClientID:  cfg.Venue.ClientCode,
		APIKey:    cfg.Venue.APIKey,
		PingEvery: 30 * time.Second,
	})

	loc, err := cfg.Live.Location()
	if err != nil {
		return err
	}
	candleTTL, _ := cfg.Live.CandleTTL()
	orderTTL, _ := cfg.Live.OrderTTL()

	orch, err := live.New(live.Config{
		AccountID:     cfg.Account.ID,
		StartingCash:  cfg.Account.StartingCash,
		Strategy:      cfg.Strategy,
		Timezone:      loc,
		QueueSize:     cfg.Live.QueueSize,
		CandleLockTTL: candleTTL,
		OrderLockTTL:  orderTTL,
	}, feed, jour, jour, live.NewMemoryLocker(), venue.NewPlacer(client, session), nil)
	if err != nil {
		return err
	}

	reg := live.NewRegistry()
	if err := reg.Start(ctx, cfg.Account.ID, orch); err != nil {
		return err
	}

	spec := cfg.Live.ReconcileSpec
	if spec == "" {
		spec = "@every 1m"
	}
	sup, err := live.NewSupervisor(ctx, spec, func(ctx context.Context) {
		if _, err := session.Ensure(ctx); err != nil {
			log.Printf("[WARN] session refresh: %v", err)
		}
		if !reg.Running(cfg.Account.ID) {
			log.Printf("[WARN] live %s: engine not running, restarting", cfg.Account.ID)
			if err := reg.Start(ctx, cfg.Account.ID, orch); err != nil {
				log.Printf("[WARN] live %s: restart failed: %v", cfg.Account.ID, err)
			}
		}
	})
	if err != nil {
		return err
	}
	sup.Start()
	defer sup.Stop()

	log.Printf("[INFO] live %s: trading %s on %s bars, ctrl-c to stop",
		cfg.Account.ID, cfg.Strategy.Instrument, barSpan(cfg.Strategy.BarMinutes))
	<-ctx.Done()

	stop() // restore default signal handling while draining
	if err := reg.StopAll(15 * time.Second); err != nil {
		return err
	}
	return nil
}

func barSpan(minutes int) string {
	return (time.Duration(minutes) * time.Minute).String()
}
