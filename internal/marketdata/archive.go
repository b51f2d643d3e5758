package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chattrack/internal/market"

	_ "modernc.org/sqlite"
)

// Manifest 记录归档中某个 symbol@interval 的覆盖范围。
type Manifest struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
}

// Archive 把实时源拉到的 K 线持久化到 sqlite，作为实时源不可用时的离线兜底。
type Archive struct {
	db   *sql.DB
	path string
}

func NewArchive(dir string) (*Archive, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("archive dir 不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "candles.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureArchiveSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db, path: path}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func ensureArchiveSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			symbol   TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			t        INTEGER NOT NULL,
			o        REAL    NOT NULL,
			h        REAL    NOT NULL,
			l        REAL    NOT NULL,
			c        REAL    NOT NULL,
			v        REAL    NOT NULL,
			PRIMARY KEY (symbol, interval, t)
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			symbol       TEXT    NOT NULL,
			interval     TEXT    NOT NULL,
			min_time     INTEGER NOT NULL DEFAULT 0,
			max_time     INTEGER NOT NULL DEFAULT 0,
			rows         INTEGER NOT NULL DEFAULT 0,
			last_sync_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, interval)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("初始化归档表失败: %w", err)
		}
	}
	return nil
}

// Insert 批量写入 K 线（重复时间戳覆盖），并刷新 manifest。
func (a *Archive) Insert(ctx context.Context, symbol, interval string, cs []market.Candle) (int, error) {
	if len(cs) == 0 {
		return 0, nil
	}
	symbol, interval = strings.ToUpper(symbol), cleanInterval(interval)
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, interval, t, o, h, l, c, v)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, t) DO UPDATE SET
		    o=excluded.o, h=excluded.h, l=excluded.l, c=excluded.c, v=excluded.v`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	for _, c := range cs {
		if _, err := stmt.ExecContext(ctx, symbol, interval, c.T, c.O, c.H, c.L, c.C, c.V); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO manifest (symbol, interval, min_time, max_time, rows, last_sync_at)
		SELECT ?, ?, COALESCE(MIN(t), 0), COALESCE(MAX(t), 0), COUNT(1), ?
		FROM candles WHERE symbol = ? AND interval = ?
		ON CONFLICT(symbol, interval) DO UPDATE SET
		    min_time=excluded.min_time, max_time=excluded.max_time,
		    rows=excluded.rows, last_sync_at=excluded.last_sync_at`,
		symbol, interval, time.Now().UnixMilli(), symbol, interval); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(cs), nil
}

// Range 返回 [start, end] 内的 K 线（0 表示不限制），按时间升序。
func (a *Archive) Range(ctx context.Context, symbol, interval string, start, end int64) (market.Candles, error) {
	symbol, interval = strings.ToUpper(symbol), cleanInterval(interval)
	if end <= 0 {
		end = 1<<63 - 1
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT t, o, h, l, c, v FROM candles
		WHERE symbol = ? AND interval = ? AND t BETWEEN ? AND ?
		ORDER BY t ASC`, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out market.Candles
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.T, &c.O, &c.H, &c.L, &c.C, &c.V); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Manifest 返回覆盖范围；没有记录时返回 ErrNoData。
func (a *Archive) Manifest(ctx context.Context, symbol, interval string) (Manifest, error) {
	symbol, interval = strings.ToUpper(symbol), cleanInterval(interval)
	row := a.db.QueryRowContext(ctx, `
		SELECT symbol, interval, min_time, max_time, rows, last_sync_at
		FROM manifest WHERE symbol = ? AND interval = ?`, symbol, interval)
	var m Manifest
	if err := row.Scan(&m.Symbol, &m.Interval, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Manifest{}, ErrNoData
		}
		return Manifest{}, err
	}
	return m, nil
}
