package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/mohb-go/pkg/mohb"
)

// HistoryStore appends evaluation history records to a SQLite database
// under the output path, keyed by run name. It replaces the opaque
// serialized blob of the original design with a durable, queryable
// store.
type HistoryStore struct {
	db *sql.DB

	// rows already flushed per run, so repeated saves of a growing
	// history only append the tail
	written map[string]int
}

// NewHistoryStore opens (or creates) history.db under the output path.
func NewHistoryStore(outputPath string) (*HistoryStore, error) {
	path := filepath.Join(outputPath, "history.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &HistoryStore{db: db, written: make(map[string]int)}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *HistoryStore) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS history (
		run TEXT NOT NULL,
		seq INTEGER NOT NULL,
		config TEXT NOT NULL,
		fitness TEXT NOT NULL,
		cost REAL NOT NULL,
		budget REAL NOT NULL,
		info TEXT,
		PRIMARY KEY (run, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_history_run ON history(run);
	`

	_, err := s.db.Exec(query)
	return err
}

// SaveHistory appends the not-yet-written suffix of the history for the
// named run.
func (s *HistoryStore) SaveHistory(name string, history []mohb.HistoryRecord) error {
	start := s.written[name]
	if start >= len(history) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		"INSERT OR REPLACE INTO history (run, seq, config, fitness, cost, budget, info) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	for i := start; i < len(history); i++ {
		rec := history[i]
		config, err := json.Marshal(rec.Config)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		fitness, err := json.Marshal(rec.Fitness)
		if err != nil {
			return fmt.Errorf("failed to encode fitness: %w", err)
		}
		var info []byte
		if rec.Info != nil {
			if info, err = json.Marshal(rec.Info); err != nil {
				return fmt.Errorf("failed to encode info: %w", err)
			}
		}
		if _, err := stmt.Exec(name, i, string(config), string(fitness), rec.Cost, rec.Budget, string(info)); err != nil {
			return fmt.Errorf("failed to insert history row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	s.written[name] = len(history)
	return nil
}

// Count returns the number of stored rows for a run.
func (s *HistoryStore) Count(name string) (int, error) {
	row := s.db.QueryRow("SELECT COUNT(*) FROM history WHERE run = ?", name)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}
