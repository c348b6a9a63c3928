package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"llmhub/common/utils"
	"llmhub/internal/chunker"
	"llmhub/internal/extract"
	"llmhub/internal/model"
	"llmhub/internal/retrieval"
	"llmhub/internal/types"
)

// MaxErrorMessageRunes 文档错误信息最大长度
const MaxErrorMessageRunes = 500

const upsertBatchSize = 128

// Store 入库流程所需的数据访问
type Store interface {
	GetKnowledgeBase(ctx context.Context, id int64) (*model.TKnowledgeBase, error)
	UpdateKnowledgeBase(ctx context.Context, id int64, fields map[string]any) error
	AdjustKnowledgeBaseStats(ctx context.Context, id, documents, chunks, tokens int64) error

	CreateDocument(ctx context.Context, doc *model.TKnowledgeDocument) error
	GetDocument(ctx context.Context, id int64) (*model.TKnowledgeDocument, error)
	UpdateDocument(ctx context.Context, id int64, fields map[string]any) error
	AdjustDocumentStats(ctx context.Context, id, chunks, tokens int64) error
	DeleteDocument(ctx context.Context, id int64) error

	ListChunks(ctx context.Context, documentID int64) ([]model.TDocumentChunk, error)
	CountChunks(ctx context.Context, documentID int64) (int64, error)
	GetChunk(ctx context.Context, id int64) (*model.TDocumentChunk, error)
	CreateChunk(ctx context.Context, chunk *model.TDocumentChunk) error
	SaveChunk(ctx context.Context, chunk *model.TDocumentChunk) error
	DeleteChunks(ctx context.Context, documentID int64) (int64, error)
	InsertChunkAt(ctx context.Context, chunk *model.TDocumentChunk) error
	DeleteChunkAndShift(ctx context.Context, chunk *model.TDocumentChunk) error
}

// Embedder 分块向量化，需按知识库所属团队计量配额
type Embedder interface {
	Embed(ctx context.Context, kb *model.TKnowledgeBase, text string) ([]float32, error)
}

// VectorIndex 可选的向量索引
type VectorIndex interface {
	EnsureCollection(ctx context.Context, collection string, dimension int) error
	Upsert(ctx context.Context, collection string, points []retrieval.VectorPoint) error
	DeleteDocument(ctx context.Context, collection string, documentID int64) error
	DeleteChunk(ctx context.Context, collection string, chunkID int64) error
}

// FileStore 上传文件存储
type FileStore interface {
	Save(kbID int64, filename string, reader io.Reader) (string, int64, error)
	Delete(relPath string) error
}

// Pipeline 文档入库流程：抽取、分块、向量化、落库
type Pipeline struct {
	store     Store
	extractor extract.Extractor
	embedder  Embedder
	vectors   VectorIndex
	files     FileStore
	defaults  chunker.Settings
	log       *zap.Logger
}

// Option 流程选项
type Option func(*Pipeline)

// WithVectorIndex 写入分块时同步写向量索引
func WithVectorIndex(v VectorIndex) Option {
	return func(p *Pipeline) { p.vectors = v }
}

// WithFileStore 设置上传文件存储
func WithFileStore(f FileStore) Option {
	return func(p *Pipeline) { p.files = f }
}

// WithDefaults 知识库未配置分块参数时的默认值
func WithDefaults(chunkSize, chunkOverlap int) Option {
	return func(p *Pipeline) {
		if chunkSize > 0 {
			p.defaults.ChunkSize = chunkSize
		}
		if chunkOverlap >= 0 {
			p.defaults.ChunkOverlap = chunkOverlap
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline 创建入库流程
func NewPipeline(store Store, extractor extract.Extractor, embedder Embedder, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		defaults: chunker.Settings{
			ChunkSize:    chunker.DefaultChunkSize,
			ChunkOverlap: chunker.DefaultChunkOverlap,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ChunkOptions 调用方指定的分块参数，nil 字段表示沿用已有配置
type ChunkOptions struct {
	ChunkSize    *int    `json:"chunk_size" validate:"omitempty,min=1,max=8000"`
	ChunkOverlap *int    `json:"chunk_overlap" validate:"omitempty,min=0"`
	Separator    *string `json:"separator" validate:"omitempty,max=32"`
	CleanText    *bool   `json:"clean_text"`
}

// Process 处理文档：pending → processing → completed | error
func (p *Pipeline) Process(ctx context.Context, documentID int64) (err error) {
	doc, kb, err := p.load(ctx, documentID)
	if err != nil {
		return err
	}
	if err := p.markProcessing(ctx, doc.ID); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			p.markFailed(ctx, doc.ID, err)
		}
	}()

	// 清理上次失败残留的分块
	if err = p.clearChunks(ctx, kb, doc); err != nil {
		return err
	}

	res, err := p.extract(ctx, doc, cleanTextSetting(doc, nil))
	if err != nil {
		return err
	}
	metadata := mergeMetadata(doc.Metadata, res.Metadata)
	if err := p.store.UpdateDocument(ctx, doc.ID, map[string]any{"metadata": metadata}); err != nil {
		return fmt.Errorf("更新文档元数据失败: %w", err)
	}

	chunks := chunker.Split(res.Text, p.settingsFor(kb, doc, nil))
	if len(chunks) == 0 {
		return types.ErrNoChunks
	}

	tokens, err := p.storeChunks(ctx, kb, doc, chunks, nil)
	if err != nil {
		return err
	}
	return p.complete(ctx, kb, doc, int64(len(chunks)), tokens)
}

// Reprocess 清空已有分块并回退知识库统计后重新处理
func (p *Pipeline) Reprocess(ctx context.Context, documentID int64) error {
	doc, kb, err := p.load(ctx, documentID)
	if err != nil {
		return err
	}
	if err := p.clearChunks(ctx, kb, doc); err != nil {
		return err
	}
	if err := p.store.UpdateDocument(ctx, doc.ID, map[string]any{
		"status":        model.DocStatusPending,
		"error_message": nil,
	}); err != nil {
		return err
	}
	return p.Process(ctx, documentID)
}

// Rechunk 保存新的分块设置后重新处理
func (p *Pipeline) Rechunk(ctx context.Context, documentID int64, opts ChunkOptions) error {
	if err := p.Configure(ctx, documentID, opts); err != nil {
		return err
	}
	return p.Reprocess(ctx, documentID)
}

// Configure 将分块设置保存为文档级配置，clean_text 写入文档元数据
func (p *Pipeline) Configure(ctx context.Context, documentID int64, opts ChunkOptions) error {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	setting := model.ChunkSetting{}
	if doc.ChunkSetting != nil {
		setting = *doc.ChunkSetting
	}
	if opts.ChunkSize != nil {
		setting.ChunkSize = *opts.ChunkSize
	}
	if opts.ChunkOverlap != nil {
		overlap := *opts.ChunkOverlap
		setting.ChunkOverlap = &overlap
	}
	if opts.Separator != nil {
		setting.Separator = *opts.Separator
	}

	fields := map[string]any{"chunk_setting": &setting}
	if opts.CleanText != nil {
		fields["metadata"] = mergeMetadata(doc.Metadata, map[string]any{"clean_text": *opts.CleanText})
	}
	return p.store.UpdateDocument(ctx, doc.ID, fields)
}

// PreviewResult 分块预览
type PreviewResult struct {
	TotalChunks int             `json:"total_chunks"`
	TotalTokens int             `json:"total_tokens"`
	TotalChars  int             `json:"total_chars"`
	Chunks      []chunker.Chunk `json:"chunks"`
}

// Summarize 汇总分块统计
func Summarize(chunks []chunker.Chunk) *PreviewResult {
	res := &PreviewResult{TotalChunks: len(chunks), Chunks: chunks}
	if res.Chunks == nil {
		res.Chunks = []chunker.Chunk{}
	}
	for _, c := range chunks {
		res.TotalTokens += c.TokenCount
		res.TotalChars += c.CharCount
	}
	return res
}

// Preview 按给定设置抽取并分块，不落库
func (p *Pipeline) Preview(ctx context.Context, documentID int64, opts ChunkOptions) (*PreviewResult, error) {
	doc, kb, err := p.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	res, err := p.extract(ctx, doc, cleanTextSetting(doc, opts.CleanText))
	if err != nil {
		return nil, err
	}
	return Summarize(chunker.Split(res.Text, p.settingsFor(kb, doc, &opts))), nil
}

// ImportChunks 用调用方提供的分块内容替换文档分块，空白内容被忽略
func (p *Pipeline) ImportChunks(ctx context.Context, documentID int64, contents []string) (err error) {
	doc, kb, err := p.load(ctx, documentID)
	if err != nil {
		return err
	}

	chunks := make([]chunker.Chunk, 0, len(contents))
	for _, content := range contents {
		if utils.IsEmpty(content) {
			continue
		}
		chunks = append(chunks, newChunk(len(chunks), content))
	}
	if len(chunks) == 0 {
		return types.ErrNoChunks
	}

	if err := p.clearChunks(ctx, kb, doc); err != nil {
		return err
	}
	if err := p.markProcessing(ctx, doc.ID); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			p.markFailed(ctx, doc.ID, err)
		}
	}()

	tokens, err := p.storeChunks(ctx, kb, doc, chunks, map[string]any{"source": "import"})
	if err != nil {
		return err
	}
	return p.complete(ctx, kb, doc, int64(len(chunks)), tokens)
}

func (p *Pipeline) load(ctx context.Context, documentID int64) (*model.TKnowledgeDocument, *model.TKnowledgeBase, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	kb, err := p.store.GetKnowledgeBase(ctx, doc.KnowledgeBaseID)
	if err != nil {
		return nil, nil, err
	}
	return doc, kb, nil
}

func (p *Pipeline) extract(ctx context.Context, doc *model.TKnowledgeDocument, clean bool) (*extract.Result, error) {
	src := extract.Source{DocType: doc.DocType, Clean: clean}
	if doc.FilePath != nil {
		src.FilePath = *doc.FilePath
	}
	if doc.SourceURL != nil {
		src.SourceURL = *doc.SourceURL
	}
	res, err := p.extractor.Extract(ctx, src)
	if err != nil {
		return nil, types.NewAppErrorWithCause(types.ErrCodeExtractFailed, "文本抽取失败", err)
	}
	return res, nil
}

// settingsFor 分块参数优先级：调用方 > 文档 chunk_setting > 知识库 > 默认值
func (p *Pipeline) settingsFor(kb *model.TKnowledgeBase, doc *model.TKnowledgeDocument, opts *ChunkOptions) chunker.Settings {
	s := p.defaults
	separator := ""

	if kb.ChunkSize != nil && *kb.ChunkSize > 0 {
		s.ChunkSize = int(*kb.ChunkSize)
	}
	if kb.ChunkOverlap != nil && *kb.ChunkOverlap >= 0 {
		s.ChunkOverlap = int(*kb.ChunkOverlap)
	}
	if kb.Separator != nil {
		separator = *kb.Separator
	}

	if cs := doc.ChunkSetting; cs != nil {
		if cs.ChunkSize > 0 {
			s.ChunkSize = cs.ChunkSize
		}
		if cs.ChunkOverlap != nil {
			s.ChunkOverlap = *cs.ChunkOverlap
		}
		if cs.Separator != "" {
			separator = cs.Separator
		}
	}

	if opts != nil {
		if opts.ChunkSize != nil && *opts.ChunkSize > 0 {
			s.ChunkSize = *opts.ChunkSize
		}
		if opts.ChunkOverlap != nil {
			s.ChunkOverlap = *opts.ChunkOverlap
		}
		if opts.Separator != nil {
			separator = *opts.Separator
		}
	}

	s.Separators = nil
	if separator != "" {
		s.Separators = []string{separator}
	}
	return s
}

// storeChunks 逐个向量化并写入分块，配置了向量索引时批量写入向量
func (p *Pipeline) storeChunks(ctx context.Context, kb *model.TKnowledgeBase, doc *model.TKnowledgeDocument, chunks []chunker.Chunk, metadata map[string]any) (int64, error) {
	var (
		tokens     int64
		points     []retrieval.VectorPoint
		collection string
	)
	for _, c := range chunks {
		vector, err := p.embedder.Embed(ctx, kb, c.Content)
		if err != nil {
			return 0, fmt.Errorf("分块 %d 向量化失败: %w", c.ChunkIndex, err)
		}

		row := newChunkRow(kb.ID, doc.ID, c, metadata)
		if err := p.store.CreateChunk(ctx, row); err != nil {
			return 0, fmt.Errorf("写入分块失败: %w", err)
		}
		tokens += int64(c.TokenCount)

		if p.vectors != nil {
			if collection == "" {
				if collection, err = p.ensureCollection(ctx, kb, len(vector)); err != nil {
					return 0, err
				}
			}
			points = append(points, vectorPoint(row, doc.Name, vector))
		}
	}

	for _, batch := range utils.SliceChunk(points, upsertBatchSize) {
		if err := p.vectors.Upsert(ctx, collection, batch); err != nil {
			return 0, fmt.Errorf("写入向量失败: %w", err)
		}
	}
	return tokens, nil
}

// ensureCollection 确保知识库 Collection 存在，并记录到知识库
func (p *Pipeline) ensureCollection(ctx context.Context, kb *model.TKnowledgeBase, dimension int) (string, error) {
	collection := retrieval.CollectionName(kb.ID)
	if err := p.vectors.EnsureCollection(ctx, collection, dimension); err != nil {
		return "", fmt.Errorf("创建向量集合失败: %w", err)
	}

	sameCollection := kb.QdrantCollection != nil && *kb.QdrantCollection == collection
	sameDimension := kb.EmbeddingDimension != nil && int(*kb.EmbeddingDimension) == dimension
	if !sameCollection || !sameDimension {
		dim := int32(dimension)
		if err := p.store.UpdateKnowledgeBase(ctx, kb.ID, map[string]any{
			"qdrant_collection":   collection,
			"embedding_dimension": dim,
		}); err != nil {
			return "", err
		}
		kb.QdrantCollection = &collection
		kb.EmbeddingDimension = &dim
	}
	return collection, nil
}

// clearChunks 删除文档分块与向量，从知识库统计中扣除文档上次的聚合值
func (p *Pipeline) clearChunks(ctx context.Context, kb *model.TKnowledgeBase, doc *model.TKnowledgeDocument) error {
	if _, err := p.store.DeleteChunks(ctx, doc.ID); err != nil {
		return fmt.Errorf("删除分块失败: %w", err)
	}
	p.deleteDocumentVectors(ctx, kb, doc.ID)

	if doc.ChunkCount > 0 || doc.TokenCount > 0 {
		if err := p.store.AdjustKnowledgeBaseStats(ctx, kb.ID, 0, -doc.ChunkCount, -doc.TokenCount); err != nil {
			return err
		}
	}
	if err := p.store.UpdateDocument(ctx, doc.ID, map[string]any{
		"chunk_count": 0,
		"token_count": 0,
	}); err != nil {
		return err
	}
	doc.ChunkCount, doc.TokenCount = 0, 0
	return nil
}

func (p *Pipeline) deleteDocumentVectors(ctx context.Context, kb *model.TKnowledgeBase, documentID int64) {
	if p.vectors == nil || kb.QdrantCollection == nil || *kb.QdrantCollection == "" {
		return
	}
	if err := p.vectors.DeleteDocument(ctx, *kb.QdrantCollection, documentID); err != nil {
		p.log.Warn("删除文档向量失败", zap.Int64("document_id", documentID), zap.Error(err))
	}
}

func (p *Pipeline) markProcessing(ctx context.Context, documentID int64) error {
	return p.store.UpdateDocument(ctx, documentID, map[string]any{
		"status":        model.DocStatusProcessing,
		"error_message": nil,
	})
}

// complete 标记完成，并把本次聚合值计入知识库统计
func (p *Pipeline) complete(ctx context.Context, kb *model.TKnowledgeBase, doc *model.TKnowledgeDocument, chunks, tokens int64) error {
	now := time.Now()
	if err := p.store.UpdateDocument(ctx, doc.ID, map[string]any{
		"status":        model.DocStatusCompleted,
		"chunk_count":   chunks,
		"token_count":   tokens,
		"processed_at":  &now,
		"error_message": nil,
	}); err != nil {
		return err
	}
	if err := p.store.AdjustKnowledgeBaseStats(ctx, kb.ID, 0, chunks, tokens); err != nil {
		return err
	}
	p.log.Info("文档处理完成",
		zap.Int64("document_id", doc.ID),
		zap.Int64("chunks", chunks),
		zap.Int64("tokens", tokens),
	)
	return nil
}

// markFailed 记录错误状态，超时或取消后仍需写入
func (p *Pipeline) markFailed(ctx context.Context, documentID int64, cause error) {
	msg := utils.TruncateRunes(cause.Error(), MaxErrorMessageRunes)
	err := p.store.UpdateDocument(context.WithoutCancel(ctx), documentID, map[string]any{
		"status":        model.DocStatusError,
		"error_message": msg,
	})
	if err != nil {
		p.log.Error("更新文档错误状态失败", zap.Int64("document_id", documentID), zap.Error(err))
	}
	level := zap.ErrorLevel
	if errors.Is(cause, context.Canceled) {
		level = zap.WarnLevel
	}
	p.log.Log(level, "文档处理失败", zap.Int64("document_id", documentID), zap.Error(cause))
}

func cleanTextSetting(doc *model.TKnowledgeDocument, override *bool) bool {
	if override != nil {
		return *override
	}
	if v, ok := doc.Metadata["clean_text"].(bool); ok {
		return v
	}
	return true
}

func mergeMetadata(base, extra map[string]any) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func newChunk(index int, content string) chunker.Chunk {
	return chunker.Chunk{
		Content:    content,
		ChunkIndex: index,
		TokenCount: chunker.EstimateTokens(content),
		CharCount:  len([]rune(content)),
	}
}

func newChunkRow(kbID, docID int64, c chunker.Chunk, metadata map[string]any) *model.TDocumentChunk {
	ref := embeddingRef(docID, c.ChunkIndex)
	row := &model.TDocumentChunk{
		KnowledgeBaseID: kbID,
		DocumentID:      docID,
		ChunkIndex:      c.ChunkIndex,
		Content:         c.Content,
		TokenCount:      c.TokenCount,
		CharCount:       c.CharCount,
		EmbeddingID:     &ref,
	}
	if len(metadata) > 0 {
		row.Metadata = mergeMetadata(nil, metadata)
	}
	return row
}

func embeddingRef(docID int64, index int) string {
	return fmt.Sprintf("doc_%d_chunk_%d", docID, index)
}

func vectorPoint(row *model.TDocumentChunk, documentName string, vector []float32) retrieval.VectorPoint {
	return retrieval.VectorPoint{
		ChunkID:      row.ID,
		DocumentID:   row.DocumentID,
		DocumentName: documentName,
		ChunkIndex:   row.ChunkIndex,
		Content:      row.Content,
		Vector:       vector,
	}
}
