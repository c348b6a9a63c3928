// Package retrieval 提供知识库的向量、全文与混合检索。
package retrieval

import (
	"context"
	"errors"
	"sort"
	"time"

	"llmhub/internal/model"
	"llmhub/internal/types"

	"go.uber.org/zap"
)

// 检索结果来源
const (
	SearchTypeVector   = "vector"
	SearchTypeFulltext = "fulltext"
	SearchTypeHybrid   = "hybrid"
)

// 向量检索后端
const (
	BackendHeuristic = "heuristic"
	BackendQdrant    = "qdrant"
)

// Result 检索结果
type Result struct {
	ChunkID      int64          `json:"chunk_id"`
	DocumentID   int64          `json:"document_id"`
	DocumentName string         `json:"document_name"`
	ChunkIndex   int            `json:"chunk_index"`
	Content      string         `json:"content"`
	Score        float64        `json:"score"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	SearchType   string         `json:"search_type"`
}

// SearchRequest 检索请求，零值字段使用知识库配置
type SearchRequest struct {
	KnowledgeBaseID int64   `json:"knowledge_base_id"`
	Query           string  `json:"query"`
	Mode            string  `json:"mode"`
	TopK            int     `json:"top_k"`
	ScoreThreshold  float64 `json:"score_threshold"`
	DocumentIDs     []int64 `json:"document_ids"`
}

// Candidate 预过滤得到的候选分块
type Candidate struct {
	ChunkID      int64
	DocumentID   int64
	DocumentName string
	ChunkIndex   int
	Content      string
	Metadata     map[string]any
}

// CandidateQuery 候选查询条件，内容包含任一词项即命中
type CandidateQuery struct {
	KnowledgeBaseID int64
	Terms           []string
	DocumentIDs     []int64
	Limit           int
}

// Store 检索所需的数据访问
type Store interface {
	GetKnowledgeBase(ctx context.Context, id int64) (*model.TKnowledgeBase, error)
	FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error)
	SaveQuery(ctx context.Context, q *model.TKnowledgeQuery) error
}

// QueryEmbedder 查询向量化
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, kb *model.TKnowledgeBase, text string) ([]float32, error)
}

// VectorSearcher 向量库检索
type VectorSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int, documentIDs []int64) ([]Result, error)
}

// Engine 检索引擎，只读，可并发使用
type Engine struct {
	store       Store
	embedder    QueryEmbedder
	vectors     VectorSearcher
	backend     string
	defaultTopK int
	log         *zap.Logger
}

// Option 引擎选项
type Option func(*Engine)

// WithEmbedder 设置查询向量化
func WithEmbedder(e QueryEmbedder) Option {
	return func(engine *Engine) { engine.embedder = e }
}

// WithVectorSearcher 设置向量库并启用 qdrant 后端
func WithVectorSearcher(v VectorSearcher) Option {
	return func(engine *Engine) {
		engine.vectors = v
		engine.backend = BackendQdrant
	}
}

// WithDefaultTopK 设置默认返回条数
func WithDefaultTopK(k int) Option {
	return func(engine *Engine) {
		if k > 0 {
			engine.defaultTopK = k
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(engine *Engine) { engine.log = l }
}

// NewEngine 创建检索引擎
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		backend:     BackendHeuristic,
		defaultTopK: 5,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search 在知识库中检索，结果按分数降序，最多 TopK 条
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	kb, err := e.store.GetKnowledgeBase(ctx, req.KnowledgeBaseID)
	if err != nil {
		return nil, err
	}
	req = e.applyDefaults(kb, req)
	start := time.Now()

	terms := ExtractTerms(req.Query)
	var results []Result
	switch req.Mode {
	case SearchTypeVector:
		results, err = e.vectorSearch(ctx, kb, req, terms, req.TopK*2)
	case SearchTypeFulltext:
		results, err = e.termSearch(ctx, req, terms, req.TopK*2, SearchTypeFulltext)
	case SearchTypeHybrid:
		var vec, text []Result
		if vec, err = e.vectorSearch(ctx, kb, req, terms, req.TopK); err != nil {
			break
		}
		if text, err = e.termSearch(ctx, req, terms, req.TopK, SearchTypeFulltext); err != nil {
			break
		}
		results = FuseRRF(vec, text)
	default:
		return nil, types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, "不支持的检索模式", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	if req.ScoreThreshold > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= req.ScoreThreshold {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}

	e.recordQuery(ctx, req, len(results), time.Since(start))
	return results, nil
}

func (e *Engine) applyDefaults(kb *model.TKnowledgeBase, req SearchRequest) SearchRequest {
	if req.Mode == "" {
		req.Mode = SearchTypeVector
		if kb.RetrievalMode != nil && *kb.RetrievalMode != "" {
			req.Mode = *kb.RetrievalMode
		}
	}
	if req.TopK <= 0 {
		req.TopK = e.defaultTopK
		if kb.TopK != nil && *kb.TopK > 0 {
			req.TopK = int(*kb.TopK)
		}
	}
	if req.ScoreThreshold < 0 {
		req.ScoreThreshold = 0
	}
	return req
}

// vectorSearch 先尝试查询向量化；失败只记日志，按词项打分兜底
func (e *Engine) vectorSearch(ctx context.Context, kb *model.TKnowledgeBase, req SearchRequest, terms []string, limit int) ([]Result, error) {
	var vector []float32
	if e.embedder != nil {
		v, err := e.embedder.EmbedQuery(ctx, kb, req.Query)
		if err != nil {
			e.log.Warn("查询向量化失败，使用关键词匹配",
				zap.Int64("knowledge_base_id", kb.ID),
				zap.Error(err),
			)
		} else {
			vector = v
		}
	}

	if e.backend == BackendQdrant && len(vector) > 0 && kb.QdrantCollection != nil && *kb.QdrantCollection != "" {
		hits, err := e.vectors.Search(ctx, *kb.QdrantCollection, vector, limit, req.DocumentIDs)
		if err == nil {
			for i := range hits {
				hits[i].SearchType = SearchTypeVector
			}
			return hits, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		e.log.Warn("向量库检索失败，使用关键词匹配",
			zap.String("collection", *kb.QdrantCollection),
			zap.Error(err),
		)
	}

	return e.termSearch(ctx, req, terms, limit, SearchTypeVector)
}

// termSearch 数据库预过滤后按词项重叠打分
func (e *Engine) termSearch(ctx context.Context, req SearchRequest, terms []string, limit int, searchType string) ([]Result, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	candidates, err := e.store.FindCandidates(ctx, CandidateQuery{
		KnowledgeBaseID: req.KnowledgeBaseID,
		Terms:           FilterTerms(terms),
		DocumentIDs:     req.DocumentIDs,
		Limit:           limit * 3,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		score := Score(req.Query, terms, c.Content)
		if score <= 0 {
			continue
		}
		results = append(results, Result{
			ChunkID:      c.ChunkID,
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			ChunkIndex:   c.ChunkIndex,
			Content:      c.Content,
			Score:        round4(score),
			Metadata:     c.Metadata,
			SearchType:   searchType,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) recordQuery(ctx context.Context, req SearchRequest, count int, latency time.Duration) {
	err := e.store.SaveQuery(ctx, &model.TKnowledgeQuery{
		KnowledgeBaseID: req.KnowledgeBaseID,
		QueryText:       req.Query,
		RetrievalMode:   req.Mode,
		TopK:            req.TopK,
		ScoreThreshold:  req.ScoreThreshold,
		ResultCount:     count,
		LatencyMs:       latency.Milliseconds(),
	})
	if err != nil {
		e.log.Warn("记录检索历史失败", zap.Int64("knowledge_base_id", req.KnowledgeBaseID), zap.Error(err))
	}
}
