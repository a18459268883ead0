// Command polymaker runs the market-making engine against an
// interactively chosen set of prediction markets.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/anoble/polymaker/internal/archive"
	"github.com/anoble/polymaker/internal/audit"
	"github.com/anoble/polymaker/internal/catalog"
	"github.com/anoble/polymaker/internal/config"
	"github.com/anoble/polymaker/internal/database"
	"github.com/anoble/polymaker/internal/engine"
	"github.com/anoble/polymaker/internal/event"
	"github.com/anoble/polymaker/internal/feed"
	"github.com/anoble/polymaker/internal/logging"
	"github.com/anoble/polymaker/internal/model"
	"github.com/anoble/polymaker/internal/orders"
	"github.com/anoble/polymaker/internal/state"
	"github.com/anoble/polymaker/internal/version"
)

const statusInterval = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			return 1
		}
	} else {
		cfg = config.Default()
	}

	logger := logging.New(cfg.Logging)
	logger.Info("starting polymaker",
		"version", version.Version,
		"instance_id", cfg.Instance.ID,
	)

	in := bufio.NewReader(os.Stdin)

	mode := promptMode(in, cfg.Trading.Mode)
	fmt.Printf("\nTrading mode: %s\n", mode.String())

	catalogClient := catalog.NewClient(cfg.Venue.CatalogURL,
		catalog.WithLogger(logger),
		catalog.WithTimeout(cfg.Venue.Timeout),
		catalog.WithRetries(cfg.Venue.MaxRetries, time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := chooseEvents(ctx, in, catalogClient)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no events selected")
		return 1
	}

	queue := event.NewQueue()
	stateStore := state.NewStore(cfg.State.File, logger)
	auditLog := audit.NewLogger(cfg.Audit.LogDir, logger)

	eng := engine.New(queue, mode, engine.Config{
		SpreadPct:   cfg.Trading.SpreadPct,
		MaxPosition: cfg.Trading.MaxPosition,
	}, stateStore, auditLog, logger)

	var archiveWriter *archive.Writer
	if cfg.Archive.Enabled {
		pool, err := database.Connect(ctx, cfg.Archive.Database)
		if err != nil {
			logger.Warn("archive database unavailable, archiving disabled", "error", err)
		} else {
			defer pool.Close()
			archiveWriter = archive.NewWriter(archive.Config{
				BatchSize:     cfg.Archive.BatchSize,
				FlushInterval: cfg.Archive.FlushInterval,
				BufferSize:    cfg.Archive.BufferSize,
			}, pool, logger)
			if err := archiveWriter.EnsureSchema(ctx); err != nil {
				logger.Warn("archive schema setup failed, archiving disabled", "error", err)
				archiveWriter = nil
			}
		}
	}
	if archiveWriter != nil {
		eng.SetArchive(archiveWriter)
		if err := archiveWriter.Start(ctx); err != nil {
			logger.Warn("archive writer failed to start", "error", err)
		}
	}

	allTokens := registerSelections(in, eng, events)
	if len(allTokens) == 0 {
		fmt.Fprintln(os.Stderr, "no markets selected")
		return 1
	}
	fmt.Printf("\nRegistered %d tokens across %d event(s)\n", len(allTokens), len(events))

	sessionName := events[0].Title
	if len(events) > 1 {
		sessionName = fmt.Sprintf("%s (+%d more)", events[0].Title, len(events)-1)
	}
	if err := eng.StartLogging(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start session logging: %v\n", err)
		return 1
	}
	defer eng.EndLogging()

	eng.Start()
	defer eng.Stop()

	feedCfg := feed.DefaultConfig(allTokens)
	feedCfg.URL = cfg.Venue.WSURL
	feedCfg.ReconnectMaxAttempts = cfg.Feed.ReconnectMaxAttempts
	feedCfg.ReconnectBackoff = cfg.Feed.ReconnectBackoff
	feedCfg.Client = feed.DefaultClientConfig(cfg.Venue.WSURL)
	feedCfg.Client.BufferSize = cfg.Feed.BufferSize

	marketFeed := feed.New(feedCfg, queue, logger)
	if err := marketFeed.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect market-data feed: %v\n", err)
		return 1
	}
	defer marketFeed.Stop()

	fmt.Printf("\n  %s TRADING ACTIVE\n", mode.String())
	fmt.Printf("  Session: %s\n", sessionName)
	fmt.Printf("  Tokens: %d\n\n", len(allTokens))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	start := time.Now()
	for {
		select {
		case sig := <-sigCh:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			logger.Info("shutdown signal received", "signal", sig.String())
			if archiveWriter != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				archiveWriter.Stop(stopCtx)
				stopCancel()
			}
			return 0

		case <-statusTicker.C:
			stats := eng.Stats()
			fmt.Printf("[STATUS] Runtime: %ds | Queue: %d | Markets: %d | Positions: %d | Orders: %d | Fills: %d | PnL: $%.2f (unrealized $%.2f)\n",
				int(time.Since(start).Seconds()),
				queue.Size(),
				stats.ActiveMarkets,
				stats.Positions,
				stats.ActiveOrders,
				stats.Fills,
				stats.TotalPnL,
				stats.UnrealizedPnL,
			)

		case <-ctx.Done():
			return 0
		}
	}
}

// promptMode asks for paper or live; live demands a typed YES.
func promptMode(in *bufio.Reader, configured string) orders.Mode {
	fmt.Println("Trading mode:")
	fmt.Println("  1. Paper Trading (simulated)")
	fmt.Println("  2. Live Trading (real money!)")
	fmt.Print("Choice [1]: ")

	line := readLine(in)
	mode := orders.Paper
	if line == "2" || (line == "" && configured == "live") {
		mode = orders.Live
	}

	if mode == orders.Live {
		fmt.Println("\nWARNING: LIVE TRADING MODE - REAL MONEY AT RISK!")
		fmt.Print("Type 'YES' to confirm: ")
		if readLine(in) != "YES" {
			fmt.Println("Live trading cancelled, switching to paper mode.")
			mode = orders.Paper
		}
	}
	return mode
}

// chooseEvents runs the search/browse prompt and the event selection.
func chooseEvents(ctx context.Context, in *bufio.Reader, client *catalog.Client) ([]model.EventInfo, error) {
	fmt.Println("\nWhat would you like to trade?")
	fmt.Println("  1. Search for a specific event (e.g. 'epl')")
	fmt.Println("  2. Browse top active events")
	fmt.Print("Choice (1 or 2): ")

	var events []model.EventInfo
	var err error
	switch readLine(in) {
	case "1":
		fmt.Print("Enter search query: ")
		query := readLine(in)
		events, err = client.SearchEvents(ctx, query)
	default:
		events, err = client.GetActiveEvents(ctx, 10)
	}
	if err != nil {
		return nil, fmt.Errorf("event lookup failed: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no events found")
	}

	fmt.Println("\nAvailable events:")
	for i, ev := range events {
		fmt.Printf("  [%d] %s\n      Volume: $%d, Liquidity: $%d, Markets: %d\n",
			i, ev.Title, int(ev.Volume), int(ev.Liquidity), len(ev.Markets))
	}

	fmt.Printf("\nSelect events (indices, 'all', or 'top N') [0]: ")
	selection := readLine(in)
	return selectEvents(events, selection)
}

// selectEvents interprets an event selection string.
func selectEvents(events []model.EventInfo, selection string) ([]model.EventInfo, error) {
	selection = strings.TrimSpace(strings.ToLower(selection))
	if selection == "" {
		selection = "0"
	}

	if selection == "all" {
		return events, nil
	}
	if n, ok := strings.CutPrefix(selection, "top "); ok {
		count, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || count < 1 {
			return nil, fmt.Errorf("invalid selection %q", selection)
		}
		if count > len(events) {
			count = len(events)
		}
		return events[:count], nil
	}

	var chosen []model.EventInfo
	for _, part := range strings.Split(selection, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || idx < 0 || idx >= len(events) {
			return nil, fmt.Errorf("invalid selection %q", part)
		}
		chosen = append(chosen, events[idx])
	}
	return chosen, nil
}

// registerSelections walks each event's market prompt and registers the
// chosen tokens. Event end times are propagated where known.
func registerSelections(in *bufio.Reader, eng *engine.Engine, events []model.EventInfo) []model.TokenID {
	var allTokens []model.TokenID

	for _, ev := range events {
		fmt.Printf("\nEvent: %s (%d markets)\n", ev.Title, len(ev.Markets))
		for i, mkt := range ev.Markets {
			fmt.Printf("  [%d] %s (vol $%d, liq $%d)\n", i, mkt.Question, int(mkt.Volume), int(mkt.Liquidity))
		}
		fmt.Print("Select markets ('all', 'top N', 'liquid N', 'vol>N', indices, 'skip') [all]: ")

		markets, err := selectMarkets(ev.Markets, readLine(in))
		if err != nil {
			fmt.Printf("  %v, skipping event\n", err)
			continue
		}

		conditions := make(map[string]bool)
		for _, mkt := range markets {
			for i, token := range mkt.Tokens {
				outcome := ""
				if i < len(mkt.Outcomes) {
					outcome = mkt.Outcomes[i]
				}
				eng.RegisterMarket(token, mkt.Question, outcome, mkt.MarketID, mkt.ConditionID)
				allTokens = append(allTokens, token)
			}
			if mkt.ConditionID != "" {
				conditions[mkt.ConditionID] = true
			}
		}

		if end, err := time.Parse(time.RFC3339, ev.EndDate); err == nil {
			for conditionID := range conditions {
				eng.SetEventEndTime(conditionID, end)
			}
		}
	}

	return allTokens
}

// selectMarkets interprets a market selection string.
func selectMarkets(markets []model.MarketInfo, selection string) ([]model.MarketInfo, error) {
	selection = strings.TrimSpace(strings.ToLower(selection))
	if selection == "" {
		selection = "all"
	}

	switch {
	case selection == "skip":
		return nil, nil

	case selection == "all":
		return markets, nil

	case strings.HasPrefix(selection, "top "):
		count, err := strconv.Atoi(strings.TrimSpace(selection[4:]))
		if err != nil || count < 1 {
			return nil, fmt.Errorf("invalid selection %q", selection)
		}
		byVolume := append([]model.MarketInfo(nil), markets...)
		sort.Slice(byVolume, func(i, j int) bool { return byVolume[i].Volume > byVolume[j].Volume })
		if count > len(byVolume) {
			count = len(byVolume)
		}
		return byVolume[:count], nil

	case strings.HasPrefix(selection, "liquid "):
		count, err := strconv.Atoi(strings.TrimSpace(selection[7:]))
		if err != nil || count < 1 {
			return nil, fmt.Errorf("invalid selection %q", selection)
		}
		byLiquidity := append([]model.MarketInfo(nil), markets...)
		sort.Slice(byLiquidity, func(i, j int) bool { return byLiquidity[i].Liquidity > byLiquidity[j].Liquidity })
		if count > len(byLiquidity) {
			count = len(byLiquidity)
		}
		return byLiquidity[:count], nil

	case strings.HasPrefix(selection, "vol>"):
		threshold, err := strconv.ParseFloat(strings.TrimSpace(selection[4:]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q", selection)
		}
		var chosen []model.MarketInfo
		for _, mkt := range markets {
			if mkt.Volume > threshold {
				chosen = append(chosen, mkt)
			}
		}
		return chosen, nil

	default:
		var chosen []model.MarketInfo
		for _, part := range strings.Split(selection, ",") {
			idx, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || idx < 0 || idx >= len(markets) {
				return nil, fmt.Errorf("invalid selection %q", part)
			}
			chosen = append(chosen, markets[idx])
		}
		return chosen, nil
	}
}

func readLine(in *bufio.Reader) string {
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}
