package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"llmhub/internal/model"
)

// Repository 基于 gorm 的数据访问，实现检索、配额、模型与入库流程所需的存储接口
type Repository struct {
	db *gorm.DB
}

// New 创建数据访问层
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB 返回底层连接
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// AutoMigrate 自动迁移全部表
func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(model.All()...)
}

// first 查询单条记录，不存在时返回 notFound
func first[T any](ctx context.Context, db *gorm.DB, notFound error, query any, args ...any) (*T, error) {
	var out T
	err := db.WithContext(ctx).Where(query, args...).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// clampedAdd 生成计数列的增减表达式，结果不低于 0
func clampedAdd(column string, delta int64) any {
	if delta >= 0 {
		return gorm.Expr(column+" + ?", delta)
	}
	return gorm.Expr("CASE WHEN "+column+" >= ? THEN "+column+" - ? ELSE 0 END", -delta, -delta)
}
