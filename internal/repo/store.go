// Package repo 提供数据访问层实现，负责与数据库交互。
// 仓储模式（Repository Pattern）将数据访问逻辑与业务逻辑分离，
// 使得业务逻辑不依赖于具体的数据存储实现。
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/MorseWayne/cart_shop/internal/database"
	"github.com/MorseWayne/cart_shop/internal/domain"
)

// mysqlDuplicateEntry ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// DBTX 同时被 *sql.DB 与 *sql.Tx 满足，仓储可运行在连接或事务之上
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories 共享同一连接或同一事务的一组仓储
type Repositories struct {
	Products ProductRepository
	Carts    CartRepository
	Orders   OrderRepository
}

// Store 工作单元：fn 内的全部仓储操作要么一起提交，要么一起回滚
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error
}

// NewRepositories 基于连接或事务构建仓储
func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Products: NewProductRepository(db),
		Carts:    NewCartRepository(db),
		Orders:   NewOrderRepository(db),
	}
}

type sqlStore struct {
	db *database.DB
}

// NewStore 创建 MySQL 工作单元
func NewStore(db *database.DB) Store {
	return &sqlStore{db: db}
}

func (s *sqlStore) WithinTx(ctx context.Context, fn func(tx Repositories) error) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(NewRepositories(tx))
	})
}

// inClause 生成 "?,?,?" 与对应参数
func inClause(ids []int64) (string, []any) {
	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders, args
}

// mustAffect RowsAffected 为 0 时返回 false
func mustAffect(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// wrapDuplicate 唯一键冲突转换为 domain.ErrConflict
func wrapDuplicate(op string, err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%s: %w: %s", op, domain.ErrConflict, me.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
