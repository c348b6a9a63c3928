package retrieval

import (
	"context"
	"fmt"
	"sync"

	"llmhub/internal/config"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

const (
	vectorField     = "text"
	upsertBatchSize = 100
)

// VectorPoint 写入向量库的分块向量，点 ID 即分块 ID
type VectorPoint struct {
	ChunkID      int64
	DocumentID   int64
	DocumentName string
	ChunkIndex   int
	Content      string
	Vector       []float32
}

// CollectionName 知识库对应的 Collection 名
func CollectionName(knowledgeBaseID int64) string {
	return fmt.Sprintf("kb_%d", knowledgeBaseID)
}

// QdrantIndex 基于 Qdrant 的向量索引，每个知识库一个 Collection
type QdrantIndex struct {
	client *qdrant.Client
	log    *zap.Logger

	mu    sync.Mutex
	known map[string]int // 已确认存在的 Collection 及维度
}

// NewQdrantIndex 连接 Qdrant
func NewQdrantIndex(cfg config.QdrantConfig, log *zap.Logger) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("Qdrant 连接失败: %w", err)
	}
	log.Info("Qdrant 已连接", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	return &QdrantIndex{client: client, log: log, known: make(map[string]int)}, nil
}

// Close 关闭连接
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// EnsureCollection 确保 Collection 存在且维度一致，维度不一致时重建
func (q *QdrantIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if dim, ok := q.known[collection]; ok && dim == dimension {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("检查 Collection 是否存在失败: %w", err)
	}
	if exists {
		info, err := q.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			return fmt.Errorf("获取 Collection 信息失败: %w", err)
		}
		if currentDimension(info) == dimension {
			q.known[collection] = dimension
			return nil
		}
		q.log.Warn("Collection 维度不匹配，重建", zap.String("collection", collection), zap.Int("dimension", dimension))
		if err := q.client.DeleteCollection(ctx, collection); err != nil {
			return fmt.Errorf("删除 Collection 失败: %w", err)
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorField: {
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("创建 Collection 失败: %w", err)
	}
	q.known[collection] = dimension
	q.log.Info("Collection 创建成功", zap.String("collection", collection), zap.Int("dimension", dimension))
	return nil
}

func currentDimension(info *qdrant.CollectionInfo) int {
	params := info.GetConfig().GetParams()
	if params == nil {
		return 0
	}
	paramsMap := params.GetVectorsConfig().GetParamsMap()
	if paramsMap == nil {
		return 0
	}
	if p, ok := paramsMap.GetMap()[vectorField]; ok {
		return int(p.GetSize())
	}
	return 0
}

// Upsert 分批写入向量，首个点的维度决定 Collection 维度
func (q *QdrantIndex) Upsert(ctx context.Context, collection string, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := q.EnsureCollection(ctx, collection, len(points[0].Vector)); err != nil {
		return err
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id: qdrant.NewIDNum(uint64(p.ChunkID)),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vectorField: qdrant.NewVectorDense(p.Vector),
			}),
			Payload: map[string]*qdrant.Value{
				"chunk_id":      qdrant.NewValueInt(p.ChunkID),
				"document_id":   qdrant.NewValueInt(p.DocumentID),
				"document_name": qdrant.NewValueString(p.DocumentName),
				"chunk_index":   qdrant.NewValueInt(int64(p.ChunkIndex)),
				"content":       qdrant.NewValueString(p.Content),
			},
		})
	}

	for i := 0; i < len(structs); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(structs))
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         structs[i:end],
		})
		if err != nil {
			return fmt.Errorf("向量写入失败 (batch %d-%d): %w", i, end, err)
		}
	}
	return nil
}

// Search 余弦相似度检索，documentIDs 非空时只在这些文档内检索
func (q *QdrantIndex) Search(ctx context.Context, collection string, vector []float32, limit int, documentIDs []int64) ([]Result, error) {
	params := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vector),
		Using:          qdrant.PtrOf(vectorField),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(documentIDs) > 0 {
		should := make([]*qdrant.Condition, 0, len(documentIDs))
		for _, id := range documentIDs {
			should = append(should, qdrant.NewMatchInt("document_id", id))
		}
		params.Filter = &qdrant.Filter{Should: should}
	}

	points, err := q.client.Query(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("向量搜索失败: %w", err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		results = append(results, Result{
			ChunkID:      payload["chunk_id"].GetIntegerValue(),
			DocumentID:   payload["document_id"].GetIntegerValue(),
			DocumentName: payload["document_name"].GetStringValue(),
			ChunkIndex:   int(payload["chunk_index"].GetIntegerValue()),
			Content:      payload["content"].GetStringValue(),
			Score:        round4(clamp01(float64(p.GetScore()))),
		})
	}
	return results, nil
}

// DeleteDocument 删除文档的全部向量
func (q *QdrantIndex) DeleteDocument(ctx context.Context, collection string, documentID int64) error {
	return q.deleteByFilter(ctx, collection, qdrant.NewMatchInt("document_id", documentID))
}

// DeleteChunk 删除单个分块的向量
func (q *QdrantIndex) DeleteChunk(ctx context.Context, collection string, chunkID int64) error {
	return q.deleteByFilter(ctx, collection, qdrant.NewMatchInt("chunk_id", chunkID))
}

func (q *QdrantIndex) deleteByFilter(ctx context.Context, collection string, cond *qdrant.Condition) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("检查 Collection 是否存在失败: %w", err)
	}
	if !exists {
		return nil
	}
	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{cond},
		}),
	})
	if err != nil {
		return fmt.Errorf("删除向量失败: %w", err)
	}
	return nil
}
