package fetchlog

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
	"github.com/jaennil/tileproxy/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteLog struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteLog(path string, l logger.Logger) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &SQLiteLog{
		db:     db,
		logger: l,
	}

	err = c.runMigrations()
	if err != nil {
		db.Close()
		return nil, err
	}

	l.Info("sqlite fetch log initialized", "path", path)

	return c, nil
}

func (c *SQLiteLog) runMigrations() error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	err = goose.Up(c.db, "migrations")
	if err != nil {
		return err
	}

	return nil
}

var _ FetchLog = (*SQLiteLog)(nil)

func (c *SQLiteLog) Record(ctx context.Context, r entity.FetchRecord) error {
	query := `INSERT INTO fetch_log (z, x, y, status, bytes, duration_ms, error, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		r.Key.Z, r.Key.X, r.Key.Y,
		string(r.Status), r.Bytes, r.Duration.Milliseconds(), r.Error,
		r.FetchedAt.UnixNano(),
	)
	if err != nil {
		c.logger.Error("sqlite fetch log insert failed", "tile", r.Key.String(), "error", err)
		return err
	}

	return nil
}

func (c *SQLiteLog) Stats(ctx context.Context) (entity.FetchStats, error) {
	query := `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(bytes), 0)
	FROM fetch_log`

	var s entity.FetchStats
	err := c.db.QueryRowContext(ctx, query).Scan(&s.Total, &s.OK, &s.Failed, &s.Bytes)
	if err != nil {
		return entity.FetchStats{}, err
	}
	return s, nil
}

func (c *SQLiteLog) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM fetch_log WHERE fetched_at < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *SQLiteLog) Close() error {
	return c.db.Close()
}
