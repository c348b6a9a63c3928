package llm

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"llmhub/internal/model"
	"llmhub/internal/types"

	"go.uber.org/zap"
)

// ModelStore 模型配置读取
type ModelStore interface {
	GetAIModel(ctx context.Context, id int64) (*model.TAiModel, error)
}

// QuotaGuard 配额检查与计量，由 quota.Tracker 实现
type QuotaGuard interface {
	CheckQuota(ctx context.Context, teamID, modelID, tokensNeeded int64) (*model.TTeamModel, error)
	CheckAndRecordUsage(ctx context.Context, teamID, modelID, tokens, requests int64) (*model.TTeamModel, error)
}

type cachedModel struct {
	updatedAt time.Time
	model     EmbeddingModel
}

// Manager 模型管理器，所有团队调用都经过配额检查
type Manager struct {
	models  ModelStore
	quota   QuotaGuard
	factory Factory
	timeout time.Duration
	log     *zap.Logger

	mu    sync.Mutex
	cache map[int64]cachedModel
}

// NewManager 创建模型管理器
func NewManager(models ModelStore, quota QuotaGuard, factory Factory, timeout time.Duration, log *zap.Logger) *Manager {
	if factory == nil {
		factory = NewEmbeddingModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		models:  models,
		quota:   quota,
		factory: factory,
		timeout: timeout,
		log:     log,
		cache:   make(map[int64]cachedModel),
	}
}

// EstimateTokens 按 4 字符 ≈ 1 token 估算，至少为 1
func EstimateTokens(texts []string) int64 {
	chars := 0
	for _, t := range texts {
		chars += utf8.RuneCountInString(t)
	}
	return int64(max(chars/4, 1))
}

// TeamEmbed 以团队身份调用嵌入模型：先检查配额，成功后计入用量
func (m *Manager) TeamEmbed(ctx context.Context, teamID, modelID int64, texts []string) ([][]float32, error) {
	em, err := m.embeddingModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	tokens := EstimateTokens(texts)
	if _, err := m.quota.CheckQuota(ctx, teamID, modelID, tokens); err != nil {
		return nil, err
	}

	callCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	vectors, err := em.EmbedBatch(callCtx, texts)
	if err != nil {
		return nil, err
	}

	if _, err := m.quota.CheckAndRecordUsage(ctx, teamID, modelID, tokens, 1); err != nil {
		m.log.Warn("记录模型用量失败", zap.Int64("team_id", teamID), zap.Int64("model_id", modelID), zap.Error(err))
		return nil, err
	}
	return vectors, nil
}

// embeddingModel 取缓存的模型实例，配置更新后重建
func (m *Manager) embeddingModel(ctx context.Context, modelID int64) (EmbeddingModel, error) {
	cfg, err := m.models.GetAIModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if !cfg.IsEnabled {
		return nil, types.ErrModelDisabled
	}
	if cfg.ModelType != model.ModelTypeEmbedding {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, "模型不是嵌入模型", cfg.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cache[modelID]; ok && c.updatedAt.Equal(cfg.UpdatedAt) {
		return c.model, nil
	}
	em, err := m.factory(cfg, m.timeout)
	if err != nil {
		return nil, err
	}
	m.cache[modelID] = cachedModel{updatedAt: cfg.UpdatedAt, model: em}
	return em, nil
}

// KnowledgeEmbedder 以知识库所属团队与嵌入模型调用 Manager
type KnowledgeEmbedder struct {
	manager        *Manager
	defaultModelID int64
}

// NewKnowledgeEmbedder defaultModelID 为 0 表示知识库必须显式配置模型
func NewKnowledgeEmbedder(manager *Manager, defaultModelID int64) *KnowledgeEmbedder {
	return &KnowledgeEmbedder{manager: manager, defaultModelID: defaultModelID}
}

// Embed 生成单段文本向量
func (k *KnowledgeEmbedder) Embed(ctx context.Context, kb *model.TKnowledgeBase, text string) ([]float32, error) {
	modelID := k.defaultModelID
	if kb.EmbeddingModelID != nil && *kb.EmbeddingModelID > 0 {
		modelID = *kb.EmbeddingModelID
	}
	if modelID == 0 {
		return nil, types.ErrModelNotConfigured
	}
	vectors, err := k.manager.TeamEmbed(ctx, kb.TeamID, modelID, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, types.NewAppError(types.ErrCodeEmbeddingFailed, "Embedding 结果为空")
	}
	return vectors[0], nil
}

// EmbedQuery 生成查询向量
func (k *KnowledgeEmbedder) EmbedQuery(ctx context.Context, kb *model.TKnowledgeBase, text string) ([]float32, error) {
	return k.Embed(ctx, kb, text)
}
