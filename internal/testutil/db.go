// Package testutil 测试用的内存数据库与数据构造
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	commonConfig "llmhub/common/config"
	"llmhub/common/database"
	"llmhub/internal/model"
)

// NewDB 打开已迁移的内存 SQLite，单连接保证所有查询共享同一个库
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(&commonConfig.DatabaseConfig{
		Driver:       "sqlite",
		Database:     "file::memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// Ptr 取值的指针
func Ptr[T any](v T) *T { return &v }

// CreateKnowledgeBase 写入一个知识库
func CreateKnowledgeBase(t testing.TB, db *gorm.DB, kb *model.TKnowledgeBase) *model.TKnowledgeBase {
	t.Helper()
	if kb.Name == "" {
		kb.Name = "测试知识库"
	}
	require.NoError(t, db.WithContext(context.Background()).Create(kb).Error)
	return kb
}

// CreateDocument 写入一个文档
func CreateDocument(t testing.TB, db *gorm.DB, doc *model.TKnowledgeDocument) *model.TKnowledgeDocument {
	t.Helper()
	if doc.Name == "" {
		doc.Name = "doc.txt"
	}
	if doc.DocType == "" {
		doc.DocType = "txt"
	}
	if doc.Status == "" {
		doc.Status = model.DocStatusPending
	}
	require.NoError(t, db.WithContext(context.Background()).Create(doc).Error)
	return doc
}

// CreateChunks 按顺序写入分块内容，序号从 0 开始
func CreateChunks(t testing.TB, db *gorm.DB, doc *model.TKnowledgeDocument, contents ...string) []model.TDocumentChunk {
	t.Helper()
	chunks := make([]model.TDocumentChunk, 0, len(contents))
	for i, content := range contents {
		c := model.TDocumentChunk{
			KnowledgeBaseID: doc.KnowledgeBaseID,
			DocumentID:      doc.ID,
			ChunkIndex:      i,
			Content:         content,
			TokenCount:      len([]rune(content)) / 4,
			CharCount:       len([]rune(content)),
		}
		require.NoError(t, db.Create(&c).Error)
		chunks = append(chunks, c)
	}
	return chunks
}
