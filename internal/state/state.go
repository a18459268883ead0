package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/anoble/polymaker/internal/model"
)

// DefaultPath is the state file location when none is configured.
const DefaultPath = "./state.json"

// Store reads and writes the trading state file.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewStore returns a store for the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Save writes the state atomically: temp file, fsync-free rename.
func (s *Store) Save(st model.TradingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state file: %w", err)
	}

	s.logger.Debug("state saved",
		"path", s.path,
		"positions", len(st.Positions),
		"total_trades", st.TotalTrades,
		"total_realized_pnl", st.TotalRealizedPnL,
	)
	return nil
}

// Load returns the persisted state, or fresh empty state when the file
// is absent or unreadable.
func (s *Store) Load() model.TradingState {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("no previous state file, starting fresh", "path", s.path)
		} else {
			s.logger.Warn("state file unreadable, starting fresh", "path", s.path, "error", err)
		}
		return model.NewTradingState()
	}

	var st model.TradingState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("state file malformed, starting fresh", "path", s.path, "error", err)
		return model.NewTradingState()
	}
	if st.Positions == nil {
		st.Positions = make(map[model.TokenID]model.PositionState)
	}

	s.logger.Info("previous state loaded",
		"path", s.path,
		"positions", len(st.Positions),
		"total_trades", st.TotalTrades,
		"total_realized_pnl", st.TotalRealizedPnL,
	)
	return st
}
