// Package manifest 把每个输出文件记录到 <out>/manifest.sqlite（按 dst upsert，重复运行保持幂等）。
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"time"

	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/infra/fsx"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

// FileName 是输出根目录下的清单文件名。
const FileName = "manifest.sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS files (
	dst         TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	role        TEXT NOT NULL,
	src         TEXT NOT NULL,
	taken_utc   TEXT NOT NULL,
	taken_local TEXT NOT NULL,
	tz_source   TEXT NOT NULL,
	lat         REAL,
	lon         REAL,
	run_id      TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS files_taken_utc ON files (taken_utc);
`

// Entry 是一行清单记录。
type Entry struct {
	Dst        string
	Kind       domain.Kind
	Role       domain.Role
	Src        string
	TakenUTC   time.Time
	TakenLocal time.Time
	TZSource   string
	Location   *domain.Coords
	RunID      string
}

// Store 是清单的读写入口；单连接，串行写入。
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open 打开（必要时创建）清单数据库并确保表结构存在。
func Open(ctx context.Context, path string) (*Store, error) {
	if err := fsx.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, goerr.Wrap(err, "创建清单目录失败", goerr.V("path", path))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "打开清单失败", goerr.V("path", path))
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "连接清单失败", goerr.V("path", path))
	}
	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, goerr.Wrap(err, "初始化清单失败", goerr.V("path", path))
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put 写入或覆盖 dst 对应的行。
func (s *Store) Put(ctx context.Context, e Entry) error {
	var lat, lon sql.NullFloat64
	if e.Location != nil && e.Location.Valid() {
		lat = sql.NullFloat64{Float64: e.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: e.Location.Lon, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (dst, kind, role, src, taken_utc, taken_local, tz_source, lat, lon, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dst) DO UPDATE SET
			kind = excluded.kind,
			role = excluded.role,
			src = excluded.src,
			taken_utc = excluded.taken_utc,
			taken_local = excluded.taken_local,
			tz_source = excluded.tz_source,
			lat = excluded.lat,
			lon = excluded.lon,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at
	`,
		e.Dst, string(e.Kind), string(e.Role), e.Src,
		e.TakenUTC.UTC().Format(time.RFC3339),
		e.TakenLocal.Format(time.RFC3339),
		e.TZSource, lat, lon, e.RunID,
		s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return goerr.Wrap(err, "写入清单失败", goerr.V("dst", e.Dst))
	}
	return nil
}

// get 按 dst 读取一行；不存在时 ok=false。
func (s *Store) get(ctx context.Context, dst string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dst, kind, role, src, taken_utc, taken_local, tz_source, lat, lon, run_id
		FROM files WHERE dst = ?
	`, dst)

	var (
		e              Entry
		kind, role     string
		takenU, takenL string
		lat, lon       sql.NullFloat64
	)
	if err := row.Scan(&e.Dst, &kind, &role, &e.Src, &takenU, &takenL, &e.TZSource, &lat, &lon, &e.RunID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, goerr.Wrap(err, "读取清单失败", goerr.V("dst", dst))
	}
	e.Kind = domain.Kind(kind)
	e.Role = domain.Role(role)
	e.TakenUTC, _ = time.Parse(time.RFC3339, takenU)
	e.TakenLocal, _ = time.Parse(time.RFC3339, takenL)
	if lat.Valid && lon.Valid {
		e.Location = &domain.Coords{Lat: lat.Float64, Lon: lon.Float64}
	}
	return e, true, nil
}

// Count 返回清单行数。
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "统计清单失败")
	}
	return n, nil
}
