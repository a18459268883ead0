package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anoble/polymaker/internal/event"
)

// DefaultURL is the venue's market-data websocket endpoint.
const DefaultURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

// Config holds feed settings.
type Config struct {
	URL                  string
	AssetIDs             []string
	ReconnectMaxAttempts int
	ReconnectBackoff     time.Duration // linear: attempt * backoff
	Client               ClientConfig
}

// DefaultConfig returns feed settings for the given asset IDs.
func DefaultConfig(assetIDs []string) Config {
	return Config{
		URL:                  DefaultURL,
		AssetIDs:             assetIDs,
		ReconnectMaxAttempts: 5,
		ReconnectBackoff:     2 * time.Second,
		Client:               DefaultClientConfig(DefaultURL),
	}
}

// Feed subscribes to the market channel and pushes parsed events into
// the engine queue. It only ever appends to the queue; all state
// mutation happens on the strategy goroutine.
type Feed struct {
	cfg    Config
	queue  *event.Queue
	logger *slog.Logger

	// newClient is swappable for tests.
	newClient func(ClientConfig, *slog.Logger) Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	client Client
}

// New creates a feed pushing into queue.
func New(cfg Config, queue *event.Queue, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	cfg.Client.URL = cfg.URL
	return &Feed{
		cfg:       cfg,
		queue:     queue,
		logger:    logger,
		newClient: NewClient,
	}
}

// Start connects, subscribes and runs the consume loop in the
// background.
func (f *Feed) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	client, err := f.connect(f.ctx)
	if err != nil {
		return fmt.Errorf("initial connect: %w", err)
	}
	f.setClient(client)

	f.wg.Add(1)
	go f.run()

	f.logger.Info("market-data feed started",
		"url", f.cfg.URL,
		"assets", len(f.cfg.AssetIDs),
	)
	return nil
}

// Stop closes the connection and joins the consume loop.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Lock()
	if f.client != nil {
		f.client.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
	f.logger.Info("market-data feed stopped")
}

// IsConnected reports the current transport state.
func (f *Feed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.client != nil && f.client.IsConnected()
}

func (f *Feed) setClient(c Client) {
	f.mu.Lock()
	f.client = c
	f.mu.Unlock()
}

// connect dials and subscribes.
func (f *Feed) connect(ctx context.Context) (Client, error) {
	client := f.newClient(f.cfg.Client, f.logger)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	sub := subscribeRequest{Type: "market", AssetsIDs: f.cfg.AssetIDs}
	payload, err := json.Marshal(sub)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("marshal subscribe: %w", err)
	}
	if err := client.Send(payload); err != nil {
		client.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	f.logger.Debug("subscribed to market channel", "assets", len(f.cfg.AssetIDs))
	return client, nil
}

// run consumes messages and reconnects on transport loss. After the
// reconnect budget is spent the engine is shut down.
func (f *Feed) run() {
	defer f.wg.Done()

	for {
		f.mu.Lock()
		client := f.client
		f.mu.Unlock()

		disconnected := f.consume(client)
		if !disconnected {
			return // stopped
		}

		client, ok := f.reconnect()
		if !ok {
			// Only an exhausted budget shuts the engine down; a
			// deliberate Stop is not a transport failure.
			if f.ctx.Err() == nil {
				f.queue.Push(event.NewShutdown("market-data transport lost"))
			}
			return
		}
		f.setClient(client)
	}
}

// consume pumps one client until it errors (returns true) or the feed
// is stopped (returns false).
func (f *Feed) consume(client Client) bool {
	for {
		select {
		case <-f.ctx.Done():
			return false

		case msg, ok := <-client.Messages():
			if !ok {
				return true
			}
			events, err := parseMessage(msg.Data)
			if err != nil {
				// Malformed input: drop the frame and carry on.
				f.logger.Warn("dropping malformed message", "error", err)
				continue
			}
			for _, ev := range events {
				f.queue.Push(ev)
			}

		case err := <-client.Errors():
			f.logger.Warn("transport error", "error", err)
			client.Close()
			return true
		}
	}
}

// reconnect retries with linear backoff up to the configured budget.
func (f *Feed) reconnect() (Client, bool) {
	for attempt := 1; attempt <= f.cfg.ReconnectMaxAttempts; attempt++ {
		delay := time.Duration(attempt) * f.cfg.ReconnectBackoff
		f.logger.Info("reconnecting",
			"attempt", attempt,
			"max_attempts", f.cfg.ReconnectMaxAttempts,
			"delay", delay,
		)

		select {
		case <-f.ctx.Done():
			return nil, false
		case <-time.After(delay):
		}

		client, err := f.connect(f.ctx)
		if err != nil {
			f.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}
		f.logger.Info("reconnected", "attempt", attempt)
		return client, true
	}

	f.logger.Error("reconnect budget exhausted", "attempts", f.cfg.ReconnectMaxAttempts)
	return nil, false
}
