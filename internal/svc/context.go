package svc

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"llmhub/common/database"
	"llmhub/common/logger"
	commonRedis "llmhub/common/redis"
	"llmhub/internal/config"
	"llmhub/internal/extract"
	"llmhub/internal/ingest"
	"llmhub/internal/llm"
	"llmhub/internal/queue"
	"llmhub/internal/quota"
	"llmhub/internal/repository"
	"llmhub/internal/retrieval"
)

var (
	_ retrieval.Store = (*repository.Repository)(nil)
	_ ingest.Store    = (*repository.Repository)(nil)
	_ quota.Store     = (*repository.Repository)(nil)
	_ llm.ModelStore  = (*repository.Repository)(nil)

	_ ingest.Embedder          = (*llm.KnowledgeEmbedder)(nil)
	_ retrieval.QueryEmbedder  = (*llm.KnowledgeEmbedder)(nil)
	_ llm.QuotaGuard           = (*quota.Tracker)(nil)
	_ ingest.VectorIndex       = (*retrieval.QdrantIndex)(nil)
	_ retrieval.VectorSearcher = (*retrieval.QdrantIndex)(nil)
	_ ingest.FileStore         = (*extract.FileStorage)(nil)
	_ queue.Runner             = (*ingest.Pipeline)(nil)
	_ queue.Dispatcher         = (*queue.RedisQueue)(nil)
	_ queue.Dispatcher         = (*queue.Inline)(nil)
)

// ServiceContext 全局服务上下文
type ServiceContext struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client // 为空时任务在进程内执行

	Repo      *repository.Repository
	Files     *extract.FileStorage
	Tracker   *quota.Tracker
	Models    *llm.Manager
	Embedder  *llm.KnowledgeEmbedder
	Qdrant    *retrieval.QdrantIndex // 未启用时为空
	Engine    *retrieval.Engine
	Pipeline  *ingest.Pipeline
	Queue     *queue.RedisQueue // 未配置 Redis 时为空
	Tasks     queue.Dispatcher
	embedding llm.Factory
}

// Option 上下文选项
type Option func(*ServiceContext)

// WithEmbeddingFactory 替换嵌入模型构造，测试使用
func WithEmbeddingFactory(f llm.Factory) Option {
	return func(s *ServiceContext) { s.embedding = f }
}

// New 打开数据库与 Redis 后组装服务
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*ServiceContext, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = commonRedis.Open(ctx, &cfg.Redis)
		if err != nil {
			_ = database.Close(db)
			return nil, err
		}
	}

	s, err := NewWithClients(ctx, cfg, db, rdb, opts...)
	if err != nil {
		_ = database.Close(db)
		_ = commonRedis.Close(rdb)
		return nil, err
	}
	return s, nil
}

// NewWithClients 使用已建立的连接组装服务，rdb 可为空
func NewWithClients(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client, opts ...Option) (*ServiceContext, error) {
	s := &ServiceContext{Config: cfg, DB: db, Redis: rdb}
	for _, opt := range opts {
		opt(s)
	}

	s.Repo = repository.New(db)
	if err := s.Repo.AutoMigrate(ctx); err != nil {
		return nil, err
	}

	files, err := extract.NewFileStorage(cfg.Knowledge.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("初始化文件存储失败: %w", err)
	}
	s.Files = files

	s.Tracker = quota.NewTracker(s.Repo,
		quota.WithLocation(cfg.Quota.Location()),
		quota.WithLogger(logger.Named("quota")),
	)
	s.Models = llm.NewManager(s.Repo, s.Tracker, s.embedding, cfg.Embedding.Timeout, logger.Named("llm"))
	s.Embedder = llm.NewKnowledgeEmbedder(s.Models, cfg.Knowledge.DefaultEmbeddingModelID)

	if cfg.Qdrant.Enabled {
		index, err := retrieval.NewQdrantIndex(cfg.Qdrant, logger.Named("qdrant"))
		if err != nil {
			logger.Warn("Qdrant 不可用，使用词项检索", zap.Error(err))
		} else {
			s.Qdrant = index
		}
	}

	engineOpts := []retrieval.Option{
		retrieval.WithEmbedder(s.Embedder),
		retrieval.WithDefaultTopK(cfg.Retrieval.DefaultTopK),
		retrieval.WithLogger(logger.Named("retrieval")),
	}
	if s.Qdrant != nil && cfg.Retrieval.VectorBackend == retrieval.BackendQdrant {
		engineOpts = append(engineOpts, retrieval.WithVectorSearcher(s.Qdrant))
	}
	s.Engine = retrieval.NewEngine(s.Repo, engineOpts...)

	pipelineOpts := []ingest.Option{
		ingest.WithFileStore(s.Files),
		ingest.WithDefaults(cfg.Knowledge.DefaultChunkSize, cfg.Knowledge.DefaultChunkOverlap),
		ingest.WithLogger(logger.Named("ingest")),
	}
	if s.Qdrant != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithVectorIndex(s.Qdrant))
	}
	s.Pipeline = ingest.NewPipeline(s.Repo, extract.NewDefaultExtractor(s.Files, cfg.Extract), s.Embedder, pipelineOpts...)

	if rdb != nil {
		s.Queue = queue.NewRedisQueue(rdb, cfg.Queue)
		s.Tasks = s.Queue
	} else {
		s.Tasks = queue.NewInline(s.Pipeline, cfg.Queue.TaskTimeout, logger.Named("queue"))
	}
	return s, nil
}

// NewWorker 创建队列消费者，未配置 Redis 时返回错误
func (s *ServiceContext) NewWorker() (*queue.Worker, error) {
	if s.Queue == nil {
		return nil, errors.New("未配置 Redis，无法启动队列消费者")
	}
	return queue.NewWorker(s.Queue, s.Pipeline, s.Config.Queue, queue.WithWorkerLogger(logger.Named("worker"))), nil
}

// Close 释放连接
func (s *ServiceContext) Close() error {
	var errs []error
	if inline, ok := s.Tasks.(*queue.Inline); ok {
		inline.Wait()
	}
	if s.Qdrant != nil {
		errs = append(errs, s.Qdrant.Close())
	}
	errs = append(errs, commonRedis.Close(s.Redis), database.Close(s.DB))
	return errors.Join(errs...)
}
