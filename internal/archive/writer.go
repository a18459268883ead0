package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anoble/polymaker/internal/model"
)

// Config holds writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// FillRow is one archived fill.
type FillRow struct {
	Time      time.Time
	SessionID string
	MarketID  string
	OrderID   model.OrderID
	Token     model.TokenID
	Side      string
	Price     float64
	Size      float64
	PnL       float64
}

// PriceRow is one archived book observation.
type PriceRow struct {
	Time      time.Time
	SessionID string
	Token     model.TokenID
	Mid       float64
	BestBid   float64
	BestAsk   float64
	SpreadBps float64
	BidVolume float64
	AskVolume float64
	Imbalance float64
}

// Stats counts writer activity.
type Stats struct {
	FillInserts  int64
	PriceInserts int64
	Dropped      int64
	Errors       int64
	Flushes      int64
}

// Writer consumes rows and writes them to Postgres in batches.
type Writer struct {
	cfg    Config
	db     *pgxpool.Pool
	logger *slog.Logger

	fills  chan FillRow
	prices chan PriceRow

	fillBatch  []FillRow
	priceBatch []PriceRow
	batchMu    sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fillInserts  atomic.Int64
	priceInserts atomic.Int64
	dropped      atomic.Int64
	errors       atomic.Int64
	flushes      atomic.Int64
}

// NewWriter creates an archive writer over the pool.
func NewWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:        cfg,
		db:         db,
		logger:     logger,
		fills:      make(chan FillRow, cfg.BufferSize),
		prices:     make(chan PriceRow, cfg.BufferSize),
		fillBatch:  make([]FillRow, 0, cfg.BatchSize),
		priceBatch: make([]PriceRow, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the archive tables if they do not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS mm_fills (
	ts         TIMESTAMPTZ NOT NULL,
	session_id TEXT        NOT NULL,
	market_id  TEXT        NOT NULL,
	order_id   TEXT        NOT NULL,
	token_id   TEXT        NOT NULL,
	side       TEXT        NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	size       DOUBLE PRECISION NOT NULL,
	pnl        DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS mm_price_updates (
	ts         TIMESTAMPTZ NOT NULL,
	session_id TEXT        NOT NULL,
	token_id   TEXT        NOT NULL,
	mid        DOUBLE PRECISION NOT NULL,
	best_bid   DOUBLE PRECISION NOT NULL,
	best_ask   DOUBLE PRECISION NOT NULL,
	spread_bps DOUBLE PRECISION NOT NULL,
	bid_volume DOUBLE PRECISION NOT NULL,
	ask_volume DOUBLE PRECISION NOT NULL,
	imbalance  DOUBLE PRECISION NOT NULL
);`
	if _, err := w.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// Start begins the consume and flush loops.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the batches and shuts the loops down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("archive shutdown timeout")
	}

	w.flush(context.Background())
	w.logger.Info("archive writer stopped")
	return nil
}

// WriteFill enqueues a fill row, dropping it when the buffer is full.
func (w *Writer) WriteFill(row FillRow) {
	select {
	case w.fills <- row:
	default:
		w.dropped.Add(1)
	}
}

// WritePrice enqueues a price row, dropping it when the buffer is full.
func (w *Writer) WritePrice(row PriceRow) {
	select {
	case w.prices <- row:
	default:
		w.dropped.Add(1)
	}
}

// Stats returns writer counters.
func (w *Writer) Stats() Stats {
	return Stats{
		FillInserts:  w.fillInserts.Load(),
		PriceInserts: w.priceInserts.Load(),
		Dropped:      w.dropped.Load(),
		Errors:       w.errors.Load(),
		Flushes:      w.flushes.Load(),
	}
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case row := <-w.fills:
			w.batchMu.Lock()
			w.fillBatch = append(w.fillBatch, row)
			full := len(w.fillBatch) >= w.cfg.BatchSize
			w.batchMu.Unlock()
			if full {
				w.flush(w.ctx)
			}

		case row := <-w.prices:
			w.batchMu.Lock()
			w.priceBatch = append(w.priceBatch, row)
			full := len(w.priceBatch) >= w.cfg.BatchSize
			w.batchMu.Unlock()
			if full {
				w.flush(w.ctx)
			}
		}
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes both batches in one pgx batch round trip.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	fills := w.fillBatch
	prices := w.priceBatch
	w.fillBatch = make([]FillRow, 0, w.cfg.BatchSize)
	w.priceBatch = make([]PriceRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if len(fills) == 0 && len(prices) == 0 {
		return
	}

	batch := &pgx.Batch{}
	for _, row := range fills {
		batch.Queue(
			`INSERT INTO mm_fills (ts, session_id, market_id, order_id, token_id, side, price, size, pnl)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			row.Time, row.SessionID, row.MarketID, row.OrderID, row.Token, row.Side, row.Price, row.Size, row.PnL,
		)
	}
	for _, row := range prices {
		batch.Queue(
			`INSERT INTO mm_price_updates (ts, session_id, token_id, mid, best_bid, best_ask, spread_bps, bid_volume, ask_volume, imbalance)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			row.Time, row.SessionID, row.Token, row.Mid, row.BestBid, row.BestAsk, row.SpreadBps, row.BidVolume, row.AskVolume, row.Imbalance,
		)
	}

	if err := w.db.SendBatch(ctx, batch).Close(); err != nil {
		w.errors.Add(1)
		w.logger.Warn("archive flush failed", "error", err, "fills", len(fills), "prices", len(prices))
		return
	}

	w.fillInserts.Add(int64(len(fills)))
	w.priceInserts.Add(int64(len(prices)))
	w.flushes.Add(1)
}
