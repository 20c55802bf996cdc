package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry は kv_entries テーブルの1行です。
type Entry struct {
	Key       string `gorm:"primaryKey;column:entry_key;size:191"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName は gorm に使わせるテーブル名です。
func (Entry) TableName() string { return "kv_entries" }

// SQLiteStore は gorm 経由で SQLite に値を保存する Store です。
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore は dsn（ファイルパスまたは ":memory:"）を開き、テーブルを作成します。
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("SQLite の DSN は必須です")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("SQLite のオープンに失敗しました: %w", err)
	}
	if dsn == ":memory:" {
		// 接続ごとに別のメモリDBになるため1本に固定します。
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewGormStore(db)
}

// NewGormStore は既存の *gorm.DB を使って Store を初期化します。
func NewGormStore(db *gorm.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db は必須です")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("kv_entries のマイグレーションに失敗しました: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("キー %q の読み込みに失敗しました: %w", key, err)
	}
	return []byte(e.Value), true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	e := Entry{Key: key, Value: string(value)}
	if err := s.db.WithContext(ctx).Save(&e).Error; err != nil {
		return fmt.Errorf("キー %q の書き込みに失敗しました: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
