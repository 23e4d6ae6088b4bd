package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 gorm/PostgreSQL 的存储
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Orders() OrderRepository       { return &orderRepo{db: s.db, lock: s.inTx} }
func (s *GormStore) Filaments() FilamentRepository { return &filamentRepo{db: s.db, lock: s.inTx} }
func (s *GormStore) Sessions() SessionRepository   { return &sessionRepo{db: s.db, lock: s.inTx} }
func (s *GormStore) Printers() PrinterRepository   { return &printerRepo{db: s.db} }
func (s *GormStore) Alerts() AlertRepository       { return &alertRepo{db: s.db} }

// Transaction 开启数据库事务。事务内的读取使用 SELECT ... FOR UPDATE，
// 同一实体上的并发修改因此串行化。
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

// DB 返回底层db
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func forUpdate(db *gorm.DB, lock bool) *gorm.DB {
	if lock {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}
