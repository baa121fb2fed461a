package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/tradebot/riskcore/internal/domain"
)

// TradeStore 平仓交易记录（sqlite）。凯利引擎和日/周限额检查的数据源。
type TradeStore struct {
	db *sql.DB
}

// OpenTradeStore 打开（必要时创建）交易库并执行迁移。
// path 为 ":memory:" 时使用内存库（测试用）。
func OpenTradeStore(path string) (*TradeStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "mkdir db dir")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// SQLite：单连接更稳定
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &TradeStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *TradeStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS trades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  pnl REAL NOT NULL,
  pnl_percent REAL NOT NULL,
  opened_at TEXT NOT NULL,
  closed_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate: %.40s", stmt)
		}
	}
	return nil
}

// Close 关闭底层连接。
func (s *TradeStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append 追加一条平仓记录，返回其自增 ID。
func (s *TradeStore) Append(ctx context.Context, t domain.TradeRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO trades (symbol, pnl, pnl_percent, opened_at, closed_at)
VALUES (?, ?, ?, ?, ?)`,
		t.Symbol, t.PnL, t.PnLPercent,
		t.OpenedAt.UTC().Format(time.RFC3339Nano),
		t.ClosedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert trade")
	}
	return res.LastInsertId()
}

// Recent 按平仓时间倒序取最近 n 条记录。
func (s *TradeStore) Recent(ctx context.Context, n int) ([]domain.TradeRecord, error) {
	if n <= 0 {
		n = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, symbol, pnl, pnl_percent, opened_at, closed_at
FROM trades ORDER BY closed_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()
	return scanTrades(rows)
}

// BySymbol 某个 symbol 的全部记录，平仓时间升序。
func (s *TradeStore) BySymbol(ctx context.Context, symbol string) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, symbol, pnl, pnl_percent, opened_at, closed_at
FROM trades WHERE symbol = ? ORDER BY closed_at ASC, id ASC`, symbol)
	if err != nil {
		return nil, errors.Wrap(err, "query trades by symbol")
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var openedAt, closedAt string
		if err := rows.Scan(&t.ID, &t.Symbol, &t.PnL, &t.PnLPercent, &openedAt, &closedAt); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		var err error
		if t.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt); err != nil {
			return nil, errors.Wrap(err, "parse opened_at")
		}
		if t.ClosedAt, err = time.Parse(time.RFC3339Nano, closedAt); err != nil {
			return nil, errors.Wrap(err, "parse closed_at")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PnLSince 自 since 起平仓记录的 PnL 合计。
func (s *TradeStore) PnLSince(ctx context.Context, since time.Time) (float64, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE closed_at >= ?`,
		since.UTC().Format(time.RFC3339Nano))
	var sum float64
	if err := row.Scan(&sum); err != nil {
		return 0, errors.Wrap(err, "sum pnl")
	}
	return sum, nil
}

// DailyPnL 自当天零点（UTC）起的 PnL 合计。
func (s *TradeStore) DailyPnL(ctx context.Context, now time.Time) (float64, error) {
	y, m, d := now.UTC().Date()
	return s.PnLSince(ctx, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// WeeklyPnL 最近 7 天的 PnL 合计。
func (s *TradeStore) WeeklyPnL(ctx context.Context, now time.Time) (float64, error) {
	return s.PnLSince(ctx, now.UTC().AddDate(0, 0, -7))
}

// TradesToday 当天（UTC）已平仓的交易笔数。
func (s *TradeStore) TradesToday(ctx context.Context, now time.Time) (int, error) {
	y, m, d := now.UTC().Date()
	since := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM trades WHERE closed_at >= ?`, since.Format(time.RFC3339Nano))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count trades")
	}
	return n, nil
}
