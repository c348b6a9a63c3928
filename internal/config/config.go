package config

import (
	"time"

	commonConfig "llmhub/common/config"
)

// Config llmhub 服务配置
type Config struct {
	commonConfig.Config `yaml:",inline"`
	Knowledge           KnowledgeConfig `yaml:"knowledge"`
	Retrieval           RetrievalConfig `yaml:"retrieval"`
	Qdrant              QdrantConfig    `yaml:"qdrant"`
	Embedding           EmbeddingConfig `yaml:"embedding"`
	Extract             ExtractConfig   `yaml:"extract"`
	Queue               QueueConfig     `yaml:"queue"`
	Quota               QuotaConfig     `yaml:"quota"`
}

// KnowledgeConfig 知识库配置
type KnowledgeConfig struct {
	UploadDir               string `yaml:"upload_dir"`
	DefaultChunkSize        int    `yaml:"default_chunk_size"`
	DefaultChunkOverlap     int    `yaml:"default_chunk_overlap"`
	DefaultEmbeddingModelID int64  `yaml:"default_embedding_model_id"` // 知识库未指定模型时使用
	MaxUploadMB             int    `yaml:"max_upload_mb"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	// VectorBackend heuristic: 词项重叠打分; qdrant: 向量库余弦检索，失败时回退 heuristic
	VectorBackend string `yaml:"vector_backend"`
	DefaultTopK   int    `yaml:"default_top_k"`
}

// QdrantConfig Qdrant 向量数据库配置
type QdrantConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	APIKey  string `yaml:"api_key"`
	UseTLS  bool   `yaml:"use_tls"`
}

// EmbeddingConfig 嵌入调用配置
type EmbeddingConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ExtractConfig 文本抽取配置
type ExtractConfig struct {
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	MaxURLBytes int64         `yaml:"max_url_bytes"`
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Key         string        `yaml:"key"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
	Workers     int           `yaml:"workers"`
}

// QuotaConfig 配额配置
type QuotaConfig struct {
	Timezone    string `yaml:"timezone"`
	DailyCron   string `yaml:"daily_cron"`
	MonthlyCron string `yaml:"monthly_cron"`
}

// Location 配额窗口使用的时区
func (q QuotaConfig) Location() *time.Location {
	if q.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// LoadConfig 加载配置并补齐默认值
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := commonConfig.Load(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "llmhub"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Knowledge.UploadDir == "" {
		c.Knowledge.UploadDir = "./data/uploads"
	}
	if c.Knowledge.DefaultChunkSize <= 0 {
		c.Knowledge.DefaultChunkSize = 500
	}
	if c.Knowledge.DefaultChunkOverlap <= 0 {
		c.Knowledge.DefaultChunkOverlap = 50
	}
	if c.Knowledge.MaxUploadMB <= 0 {
		c.Knowledge.MaxUploadMB = 50
	}
	if c.Retrieval.VectorBackend == "" {
		c.Retrieval.VectorBackend = "heuristic"
	}
	if c.Retrieval.DefaultTopK <= 0 {
		c.Retrieval.DefaultTopK = 5
	}
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = "127.0.0.1"
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = 6334
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = 60 * time.Second
	}
	if c.Extract.HTTPTimeout <= 0 {
		c.Extract.HTTPTimeout = 30 * time.Second
	}
	if c.Extract.MaxURLBytes <= 0 {
		c.Extract.MaxURLBytes = 20 << 20
	}
	if c.Queue.Key == "" {
		c.Queue.Key = "llmhub:queue:documents"
	}
	if c.Queue.LockTTL <= 0 {
		c.Queue.LockTTL = 30 * time.Minute
	}
	if c.Queue.TaskTimeout <= 0 {
		c.Queue.TaskTimeout = 20 * time.Minute
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Quota.DailyCron == "" {
		c.Quota.DailyCron = "0 0 * * *"
	}
	if c.Quota.MonthlyCron == "" {
		c.Quota.MonthlyCron = "0 0 1 * *"
	}
}
