package headcache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one cached head timestamp: the earliest bar a provider can serve
// for (symbol, timeframe, sub_key). sub_key distinguishes what-to-show style
// query variants that can have different earliest dates.
type Entry struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	SubKey    string `json:"sub_key"`
	Earliest  int64  `json:"earliest"`
	FetchedAt int64  `json:"fetched_at"`
}

// Store is a sqlite-backed TTL cache of head timestamps.
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

func NewStore(root string, ttl time.Duration) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("head cache root cannot be empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "head_timestamps.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS head_timestamps (
			symbol     TEXT NOT NULL,
			timeframe  TEXT NOT NULL,
			sub_key    TEXT NOT NULL DEFAULT '',
			earliest   INTEGER NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, timeframe, sub_key)
		);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, ttl: ttl}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func normalize(symbol, timeframe, subKey string) (string, string, string) {
	return strings.ToUpper(strings.TrimSpace(symbol)),
		strings.ToLower(strings.TrimSpace(timeframe)),
		strings.ToUpper(strings.TrimSpace(subKey))
}

// Get returns the cached entry if present and younger than the TTL.
func (s *Store) Get(ctx context.Context, symbol, timeframe, subKey string) (Entry, bool, error) {
	symbol, timeframe, subKey = normalize(symbol, timeframe, subKey)
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, timeframe, sub_key, earliest, fetched_at
		FROM head_timestamps
		WHERE symbol=? AND timeframe=? AND sub_key=?`, symbol, timeframe, subKey)
	var e Entry
	if err := row.Scan(&e.Symbol, &e.Timeframe, &e.SubKey, &e.Earliest, &e.FetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	if time.Since(time.UnixMilli(e.FetchedAt)) > s.ttl {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put upserts an entry, stamping fetched_at.
func (s *Store) Put(ctx context.Context, symbol, timeframe, subKey string, earliest int64) error {
	symbol, timeframe, subKey = normalize(symbol, timeframe, subKey)
	if symbol == "" || timeframe == "" {
		return fmt.Errorf("symbol/timeframe cannot be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO head_timestamps (symbol, timeframe, sub_key, earliest, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, sub_key) DO UPDATE SET
		    earliest=excluded.earliest,
		    fetched_at=excluded.fetched_at`,
		symbol, timeframe, subKey, earliest, time.Now().UnixMilli())
	return err
}
