package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/anoble/polymaker/internal/model"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Logger writes the session audit CSVs. All writes are serialized by
// one mutex and flushed per row.
type Logger struct {
	logDir string
	logger *slog.Logger

	mu sync.Mutex

	sessionID    string
	sessionDir   string
	eventName    string
	sessionStart time.Time

	ordersFile       *os.File
	fillsFile        *os.File
	positionsFile    *os.File
	priceUpdatesFile *os.File

	orders       *csv.Writer
	fills        *csv.Writer
	positions    *csv.Writer
	priceUpdates *csv.Writer

	// Running session statistics.
	totalTrades   int
	totalVolume   float64
	realizedPnL   float64
	winningTrades int
	losingTrades  int
	largestWin    float64
	largestLoss   float64
	sumWins       float64
	sumLosses     float64
}

// NewLogger returns an audit logger rooted at logDir. No files are
// opened until StartSession.
func NewLogger(logDir string, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logDir: logDir, logger: logger}
}

// SessionID returns the current session identifier.
func (l *Logger) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// SessionDir returns the current session directory.
func (l *Logger) SessionDir() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionDir
}

// StartSession creates the session directory and opens the CSV files.
func (l *Logger) StartSession(eventName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.eventName = eventName
	l.sessionStart = time.Now()
	l.sessionID = "session_" + l.sessionStart.Format("20060102_150405")
	l.sessionDir = filepath.Join(l.logDir, l.sessionID)

	if err := os.MkdirAll(l.sessionDir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	var err error
	l.ordersFile, l.orders, err = openCSV(l.sessionDir, "orders.csv",
		[]string{"timestamp", "market_id", "order_id", "token_id", "side", "price", "size", "status"})
	if err != nil {
		return err
	}
	l.fillsFile, l.fills, err = openCSV(l.sessionDir, "fills.csv",
		[]string{"timestamp", "market_id", "order_id", "token_id", "side", "fill_price", "fill_size", "pnl"})
	if err != nil {
		return err
	}
	l.positionsFile, l.positions, err = openCSV(l.sessionDir, "positions.csv",
		[]string{"timestamp", "market_id", "token_id", "position", "avg_cost", "opened_at", "last_updated", "entry_side", "num_fills", "total_cost"})
	if err != nil {
		return err
	}
	l.priceUpdatesFile, l.priceUpdates, err = openCSV(l.sessionDir, "price_updates.csv",
		[]string{"timestamp", "market_id", "token_id", "mid_price", "price_change_pct", "price_change_abs",
			"best_bid", "best_ask", "spread", "spread_bps", "bid_volume_5levels", "ask_volume_5levels",
			"total_volume", "volume_imbalance", "bid_levels_count", "ask_levels_count",
			"our_inventory", "time_to_event_hours", "seconds_since_last_update"})
	if err != nil {
		return err
	}

	l.logger.Info("trading session started", "session_id", l.sessionID, "event", eventName)
	return nil
}

// EndSession writes the JSON summary and closes every file. Safe to
// call when no session was started.
func (l *Logger) EndSession() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ordersFile == nil {
		return
	}

	l.writeSummary()
	l.closeFiles()

	l.logger.Info("trading session ended",
		"session_id", l.sessionID,
		"duration_secs", int(time.Since(l.sessionStart).Seconds()),
	)
}

// LogOrderPlaced records a new OPEN order.
func (l *Logger) LogOrderPlaced(order model.Order, marketID string) {
	l.writeRow(l.orders, []string{
		timestamp(), marketID, order.ID, order.Token, order.Side.String(),
		ff(order.Price), ff(order.Size), "OPEN",
	})
}

// LogOrderCancelled records a cancellation with its reason.
func (l *Logger) LogOrderCancelled(order model.Order, marketID, reason string) {
	status := "CANCELLED"
	if reason != "" {
		status = "CANCELLED_" + reason
	}
	l.writeRow(l.orders, []string{
		timestamp(), marketID, order.ID, order.Token, order.Side.String(),
		ff(order.Price), ff(order.Size), status,
	})
}

// LogOrderFilled records a fill and folds it into the session stats.
func (l *Logger) LogOrderFilled(marketID string, orderID model.OrderID, token model.TokenID, price model.Price, size model.Size, side model.Side, pnl float64) {
	l.writeRow(l.fills, []string{
		timestamp(), marketID, orderID, token, side.String(),
		ff(price), ff(size), ff(pnl),
	})

	l.mu.Lock()
	l.totalTrades++
	l.totalVolume += size * price
	l.realizedPnL += pnl
	if pnl > 0 {
		l.winningTrades++
		l.sumWins += pnl
		if pnl > l.largestWin {
			l.largestWin = pnl
		}
	} else if pnl < 0 {
		l.losingTrades++
		l.sumLosses += pnl
		if pnl < l.largestLoss {
			l.largestLoss = pnl
		}
	}
	l.mu.Unlock()
}

// LogPosition records a position snapshot row.
func (l *Logger) LogPosition(marketID string, token model.TokenID, pos model.Position) {
	l.writeRow(l.positions, []string{
		timestamp(), marketID, token,
		ff(pos.Quantity), ff(pos.AvgEntryPrice),
		pos.OpenedAt.UTC().Format(timeLayout),
		pos.LastUpdated.UTC().Format(timeLayout),
		pos.EntrySide.String(),
		strconv.Itoa(pos.NumFills),
		ff(pos.Quantity * pos.AvgEntryPrice),
	})
}

// PriceUpdateRow carries the per-update market metrics for the audit
// stream.
type PriceUpdateRow struct {
	MarketID        string
	Token           model.TokenID
	MidPrice        model.Price
	PriceChangePct  float64
	PriceChangeAbs  float64
	BestBid         model.Price
	BestAsk         model.Price
	Spread          model.Price
	SpreadBps       float64
	BidVolume       float64
	AskVolume       float64
	TotalVolume     float64
	VolumeImbalance float64
	BidLevels       int
	AskLevels       int
	OurInventory    float64
	HoursToEvent    float64
	SecsSinceUpdate float64
}

// LogPriceUpdate records one book update's derived metrics.
func (l *Logger) LogPriceUpdate(row PriceUpdateRow) {
	l.writeRow(l.priceUpdates, []string{
		timestamp(), row.MarketID, row.Token,
		ff(row.MidPrice), ff(row.PriceChangePct), ff(row.PriceChangeAbs),
		ff(row.BestBid), ff(row.BestAsk), ff(row.Spread), ff(row.SpreadBps),
		ff(row.BidVolume), ff(row.AskVolume), ff(row.TotalVolume), ff(row.VolumeImbalance),
		strconv.Itoa(row.BidLevels), strconv.Itoa(row.AskLevels),
		ff(row.OurInventory), ff(row.HoursToEvent), ff(row.SecsSinceUpdate),
	})
}

func (l *Logger) writeRow(w *csv.Writer, row []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Write(row); err != nil {
		l.logger.Warn("audit row write failed", "error", err)
		return
	}
	w.Flush()
}

func (l *Logger) writeSummary() {
	avgWin, avgLoss := 0.0, 0.0
	if l.winningTrades > 0 {
		avgWin = l.sumWins / float64(l.winningTrades)
	}
	if l.losingTrades > 0 {
		avgLoss = l.sumLosses / float64(l.losingTrades)
	}
	winRate := 0.0
	if l.totalTrades > 0 {
		winRate = float64(l.winningTrades) / float64(l.totalTrades)
	}

	summary := map[string]any{
		"session_id":     l.sessionID,
		"event_name":     l.eventName,
		"start_time":     l.sessionStart.Unix(),
		"end_time":       time.Now().Unix(),
		"uptime_seconds": int(time.Since(l.sessionStart).Seconds()),
		"total_trades":   l.totalTrades,
		"total_volume":   l.totalVolume,
		"realized_pnl":   l.realizedPnL,
		"winning_trades": l.winningTrades,
		"losing_trades":  l.losingTrades,
		"win_rate":       winRate,
		"avg_win":        avgWin,
		"avg_loss":       avgLoss,
		"largest_win":    l.largestWin,
		"largest_loss":   l.largestLoss,
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		l.logger.Warn("session summary marshal failed", "error", err)
		return
	}
	path := filepath.Join(l.sessionDir, "session_summary.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		l.logger.Warn("session summary write failed", "error", err)
	}
}

func (l *Logger) closeFiles() {
	for _, f := range []*os.File{l.ordersFile, l.fillsFile, l.positionsFile, l.priceUpdatesFile} {
		if f != nil {
			f.Close()
		}
	}
	l.ordersFile, l.fillsFile, l.positionsFile, l.priceUpdatesFile = nil, nil, nil, nil
	l.orders, l.fills, l.positions, l.priceUpdates = nil, nil, nil, nil
}

// Stats returns the running session aggregates.
func (l *Logger) Stats() (trades int, volume, pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalTrades, l.totalVolume, l.realizedPnL
}

func openCSV(dir, name string, header []string) (*os.File, *csv.Writer, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", name, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("write %s header: %w", name, err)
	}
	w.Flush()
	return f, w, nil
}

func timestamp() string {
	return time.Now().UTC().Format(timeLayout)
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
