package store

import (
	"context"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Persistence is the durable key-value substrate match records live in.
// Scopes name the owning container: a long-lived scene or a running contest.
type Persistence interface {
	Get(ctx context.Context, scope, key string) ([]byte, bool, error)
	Set(ctx context.Context, scope, key string, value []byte) error
	Delete(ctx context.Context, scope, key string) error
}

// Memory is the in-process substrate used in tests and DSN-less runs.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, scope, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[scope+"/"+key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, scope, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[scope+"/"+key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, scope+"/"+key)
	return nil
}

// Record is the gorm row for one stored blob.
type Record struct {
	Scope string `gorm:"primaryKey;size:128"`
	Name  string `gorm:"primaryKey;size:128"`
	Value []byte
}

func (Record) TableName() string { return "kv_records" }

// DB is the postgres-backed substrate.
type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) (*DB, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Get(ctx context.Context, scope, key string) ([]byte, bool, error) {
	var rec Record
	err := d.db.WithContext(ctx).First(&rec, "scope = ? AND name = ?", scope, key).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec.Value, true, nil
}

func (d *DB) Set(ctx context.Context, scope, key string, value []byte) error {
	rec := Record{Scope: scope, Name: key, Value: value}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rec).Error
}

func (d *DB) Delete(ctx context.Context, scope, key string) error {
	return d.db.WithContext(ctx).Delete(&Record{}, "scope = ? AND name = ?", scope, key).Error
}
