// Package database 管理本地 SQLite 数据库连接与表结构。
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/iabetor/sesli/internal/logger"
)

// DB 是统一的 SQLite 数据库连接。
type DB struct {
	*sql.DB
	path string
}

// DefaultPath 返回默认数据库路径 ~/.sesli/sesli.db。
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./sesli.db"
	}
	return filepath.Join(home, ".sesli", "sesli.db")
}

// Open 打开或创建数据库。dbPath 为空时使用 DefaultPath；":memory:" 打开内存数据库。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		dbPath = DefaultPath()
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// SQLite 只允许一个写连接，内存库多连接时各自是独立的数据库
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 busy_timeout 失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 语音请求记录表，每个请求一行，状态随生命周期更新
		`CREATE TABLE IF NOT EXISTS speech_log (
			request_id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			engine TEXT DEFAULT '',
			status TEXT NOT NULL,
			error TEXT DEFAULT '',
			duration_ms INTEGER DEFAULT 0,
			created_at INTEGER NOT NULL, -- Unix 毫秒
			updated_at INTEGER NOT NULL
		)`,
		// TTS 引擎使用统计表
		`CREATE TABLE IF NOT EXISTS tts_stats (
			engine TEXT NOT NULL,
			date TEXT NOT NULL,
			count INTEGER DEFAULT 0,
			failures INTEGER DEFAULT 0,
			PRIMARY KEY(engine, date)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_speech_log_created ON speech_log(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_speech_log_status ON speech_log(status)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Info("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
