// Package history 记录每个语音请求的生命周期，便于排查合成与播放问题。
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iabetor/sesli/internal/database"
)

// Status 是语音请求在记录中的状态。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusReady     Status = "ready"
	StatusPlayed    Status = "played"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Entry 一条语音请求记录。
type Entry struct {
	RequestID string
	Text      string
	Engine    string
	Status    Status
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EngineStat 引擎某一天的使用统计。
type EngineStat struct {
	Engine   string
	Date     string
	Count    int
	Failures int
}

// Store 基于 SQLite 的历史存储。
type Store struct {
	db  *database.DB
	now func() time.Time
}

// NewStore 在已迁移的数据库上创建存储。
func NewStore(db *database.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record 写入或更新请求记录。后续状态只覆盖非空字段，文本与创建时间保持首次写入的值。
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.RequestID == "" {
		return fmt.Errorf("记录缺少 request_id")
	}
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO speech_log (request_id, text, engine, status, error, duration_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			status = excluded.status,
			engine = CASE WHEN excluded.engine != '' THEN excluded.engine ELSE speech_log.engine END,
			error = CASE WHEN excluded.error != '' THEN excluded.error ELSE speech_log.error END,
			duration_ms = CASE WHEN excluded.duration_ms > 0 THEN excluded.duration_ms ELSE speech_log.duration_ms END,
			updated_at = excluded.updated_at`,
		e.RequestID, e.Text, e.Engine, string(e.Status), e.Error, e.Duration.Milliseconds(),
		e.CreatedAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("写入语音记录失败: %w", err)
	}

	if e.Engine != "" && (e.Status == StatusReady || e.Status == StatusFailed) {
		failures := 0
		if e.Status == StatusFailed {
			failures = 1
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO tts_stats (engine, date, count, failures) VALUES (?, ?, 1, ?)
			ON CONFLICT(engine, date) DO UPDATE SET
				count = tts_stats.count + 1,
				failures = tts_stats.failures + excluded.failures`,
			e.Engine, now.Format("2006-01-02"), failures,
		)
		if err != nil {
			return fmt.Errorf("更新引擎统计失败: %w", err)
		}
	}
	return nil
}

// Get 按请求 ID 查询记录。
func (s *Store) Get(ctx context.Context, requestID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT request_id, text, engine, status, error, duration_ms, created_at, updated_at
		FROM speech_log WHERE request_id = ?`, requestID)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, fmt.Errorf("记录不存在: %s", requestID)
	}
	return e, err
}

// List 返回最近的 limit 条记录，按创建时间倒序。
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, text, engine, status, error, duration_ms, created_at, updated_at
		FROM speech_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询语音记录失败: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats 返回各引擎按天的统计。
func (s *Store) Stats(ctx context.Context) ([]EngineStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT engine, date, count, failures FROM tts_stats ORDER BY date DESC, engine`)
	if err != nil {
		return nil, fmt.Errorf("查询引擎统计失败: %w", err)
	}
	defer rows.Close()

	var out []EngineStat
	for rows.Next() {
		var st EngineStat
		if err := rows.Scan(&st.Engine, &st.Date, &st.Count, &st.Failures); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(r scanner) (Entry, error) {
	var (
		e                Entry
		status           string
		ms               int64
		created, updated int64
	)
	if err := r.Scan(&e.RequestID, &e.Text, &e.Engine, &status, &e.Error, &ms, &created, &updated); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.UnixMilli(created)
	e.UpdatedAt = time.UnixMilli(updated)
	e.Status = Status(status)
	e.Duration = time.Duration(ms) * time.Millisecond
	return e, nil
}
