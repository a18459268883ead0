package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anoble/polymaker/internal/adverse"
	"github.com/anoble/polymaker/internal/archive"
	"github.com/anoble/polymaker/internal/audit"
	"github.com/anoble/polymaker/internal/book"
	"github.com/anoble/polymaker/internal/event"
	"github.com/anoble/polymaker/internal/maker"
	"github.com/anoble/polymaker/internal/model"
	"github.com/anoble/polymaker/internal/orders"
	"github.com/anoble/polymaker/internal/state"
	"github.com/anoble/polymaker/internal/summary"
)

// Housekeeping cadences, measured on the monotonic clock between
// processed events.
const (
	quoteSweepInterval   = time.Second
	summaryCheckInterval = 5 * time.Second
	snapshotInterval     = 60 * time.Second

	// Quote prices within this distance of the target are left alone.
	quoteTolerance = 0.001

	maxFillMetrics = 500
)

// Config holds the engine's pricing parameters.
type Config struct {
	SpreadPct   float64
	MaxPosition float64
}

// DefaultConfig returns the standard pricing parameters.
func DefaultConfig() Config {
	return Config{
		SpreadPct:   maker.DefaultSpreadPct,
		MaxPosition: maker.DefaultMaxPosition,
	}
}

// priceMark remembers the last observed mid for price-update metrics.
type priceMark struct {
	mid model.Price
	at  time.Time
}

// fillMetrics captures the market context around one of our fills.
type fillMetrics struct {
	FillTime        time.Time
	Token           model.TokenID
	OrderID         model.OrderID
	Side            model.Side
	FillPrice       model.Price
	MidAtFill       model.Price
	BestBidAtFill   model.Price
	BestAskAtFill   model.Price
	SpreadAtFill    float64
	ImbalanceAtFill float64
	InventoryBefore float64
	InventoryAfter  float64

	Mid30sAfter     model.Price
	Mid60sAfter     model.Price
	MetricsComplete bool
}

// Stats is the aggregate snapshot read by the status sampler.
type Stats struct {
	Positions      int
	ActiveMarkets  int
	ActiveOrders   int
	Bids           int
	Asks           int
	TotalPnL       float64
	UnrealizedPnL  float64
	TotalInventory float64
	AvgSpreadBps   float64
	Fills          uint64
}

// Engine is the strategy event loop and the owner of all trading state.
type Engine struct {
	cfg    Config
	queue  *event.Queue
	logger *slog.Logger

	stateStore *state.Store
	auditLog   *audit.Logger
	asMonitor  *adverse.Monitor
	orderMgr   *orders.Manager

	// summaryAgg is created when the audit session starts.
	summaryAgg *summary.Aggregator

	// archiveWriter is optional; nil disables archiving.
	archiveWriter *archive.Writer

	running  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
	cleanup  sync.Once
	wg       sync.WaitGroup

	// Strategy-goroutine-owned domain state.
	books      map[model.TokenID]*book.Book
	makers     map[model.TokenID]*maker.Maker
	metadata   map[model.TokenID]model.MarketMetadata
	priceMarks map[model.TokenID]priceMark
	restored   map[model.TokenID]bool

	persisted model.TradingState

	// Position book, read by the status sampler.
	positionsMu sync.Mutex
	positions   map[model.TokenID]*model.Position

	// Active quotes keyed by token, source of truth for TTL sweeps.
	quotesMu     sync.Mutex
	activeQuotes map[model.TokenID]model.Quote

	fillMu      sync.Mutex
	fillHistory []*fillMetrics

	totalFills  atomic.Uint64
	totalTrades int
	totalVolume float64

	initialPositionsLogged atomic.Bool

	statsMu sync.Mutex
	stats   Stats

	lastQuoteSweep   time.Time
	lastSummaryCheck time.Time
	lastSnapshot     time.Time
}

// New builds an engine around the queue. The previous trading state is
// loaded immediately; each token's inventory is restored from it the
// first time that token is quoted.
func New(queue *event.Queue, mode orders.Mode, cfg Config, store *state.Store, auditLog *audit.Logger, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:          cfg,
		queue:        queue,
		logger:       logger,
		stateStore:   store,
		auditLog:     auditLog,
		asMonitor:    adverse.NewMonitor(cfg.MaxPosition, logger),
		books:        make(map[model.TokenID]*book.Book),
		makers:       make(map[model.TokenID]*maker.Maker),
		metadata:     make(map[model.TokenID]model.MarketMetadata),
		priceMarks:   make(map[model.TokenID]priceMark),
		restored:     make(map[model.TokenID]bool),
		positions:    make(map[model.TokenID]*model.Position),
		activeQuotes: make(map[model.TokenID]model.Quote),
		done:         make(chan struct{}),
	}
	// An untyped nil keeps the order manager's audit check meaningful.
	var auditSink orders.AuditLog
	if auditLog != nil {
		auditSink = auditLog
	}
	e.orderMgr = orders.NewManager(queue, mode, auditSink, logger)

	if store != nil {
		e.persisted = store.Load()
	} else {
		e.persisted = model.NewTradingState()
	}
	// Trade and volume totals carry on from the previous session.
	e.totalTrades = e.persisted.TotalTrades
	e.totalVolume = e.persisted.TotalVolume

	logger.Info("strategy engine initialized", "mode", mode.String())
	return e
}

// SetArchive attaches an optional Postgres archive writer. Must be
// called before Start.
func (e *Engine) SetArchive(w *archive.Writer) {
	e.archiveWriter = w
}

// Queue returns the engine's inbox (for producers).
func (e *Engine) Queue() *event.Queue { return e.queue }

// OrderManager exposes the order manager (tests and status).
func (e *Engine) OrderManager() *orders.Manager { return e.orderMgr }

// Start spawns the consumer goroutine and the timer producer.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Info("strategy engine already running")
		return
	}

	now := time.Now()
	e.lastQuoteSweep = now
	e.lastSummaryCheck = now
	e.lastSnapshot = now

	e.wg.Add(1)
	go e.run()

	e.wg.Add(1)
	go e.timerLoop()

	e.logger.Info("strategy engine started")
}

// Stop flips the running flag, enqueues a shutdown event and joins the
// workers. Safe to call more than once, and after a feed-driven
// shutdown already stopped the loop.
func (e *Engine) Stop() {
	e.running.Store(false)
	e.signalDone()
	e.queue.Push(event.NewShutdown("strategy shutdown"))
	e.wg.Wait()

	e.cleanup.Do(func() {
		e.orderMgr.CancelAll(orders.ReasonShutdown)
		e.snapshotPositions()
		if e.summaryAgg != nil {
			e.summaryAgg.Flush()
			e.summaryAgg.Close()
		}
		e.logger.Info("strategy engine stopped")
	})
}

// signalDone releases the timer goroutine exactly once, whether the
// loop ends via Stop or a Shutdown event from the feed.
func (e *Engine) signalDone() {
	e.doneOnce.Do(func() { close(e.done) })
}

// IsRunning reports whether the event loop is active.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// StartLogging opens the audit session and the summary aggregator.
func (e *Engine) StartLogging(eventName string) error {
	if e.auditLog == nil {
		return nil
	}
	if err := e.auditLog.StartSession(eventName); err != nil {
		return err
	}

	agg, err := summary.NewAggregator(e.auditLog.SessionDir(), e.logger)
	if err != nil {
		return err
	}
	e.summaryAgg = agg
	return nil
}

// EndLogging closes the audit session.
func (e *Engine) EndLogging() {
	if e.auditLog != nil {
		e.auditLog.EndSession()
	}
}

// run is the single-consumer event loop.
func (e *Engine) run() {
	defer e.wg.Done()
	defer e.signalDone()
	e.logger.Debug("event loop started")

	for e.running.Load() {
		ev := e.queue.Pop()

		switch ev := ev.(type) {
		case *event.BookSnapshot:
			e.handleBookSnapshot(ev)
		case *event.PriceLevelUpdate:
			e.handlePriceUpdate(ev)
		case *event.OrderFill:
			e.handleOrderFill(ev)
		case *event.OrderRejected:
			e.handleOrderRejected(ev)
		case *event.TimerTick:
			// Housekeeping below.
		case *event.Shutdown:
			e.logger.Debug("shutdown event received", "reason", ev.Reason)
			e.running.Store(false)
		default:
			e.logger.Warn("unknown event type", "event", ev)
		}

		e.housekeeping()
	}

	e.logger.Info("event loop exited")
}

// timerLoop nudges the consumer so housekeeping runs on quiet feeds.
func (e *Engine) timerLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.queue.Push(event.NewTimerTick())
		}
	}
}

// housekeeping advances the periodic tasks based on elapsed monotonic
// time since each last ran.
func (e *Engine) housekeeping() {
	now := time.Now()

	if now.Sub(e.lastQuoteSweep) >= quoteSweepInterval {
		e.checkExpiredQuotes(now)
		e.refreshStats()
		e.lastQuoteSweep = now
	}

	if now.Sub(e.lastSummaryCheck) >= summaryCheckInterval {
		if e.summaryAgg != nil && e.summaryAgg.ShouldFlush() {
			e.summaryAgg.Flush()
		}
		e.lastSummaryCheck = now
	}

	if now.Sub(e.lastSnapshot) >= snapshotInterval {
		e.snapshotPositions()
		e.checkPendingFillMetrics(now)
		e.logQuoteSummary()
		e.asMonitor.Decay()
		e.lastSnapshot = now
	}
}
