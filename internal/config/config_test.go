package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
app:
  name: kb
database:
  driver: sqlite
  database: ":memory:"
knowledge:
  default_embedding_model_id: 7
queue:
  task_timeout: 90s
quota:
  timezone: Asia/Shanghai
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "kb", cfg.App.Name)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, int64(7), cfg.Knowledge.DefaultEmbeddingModelID)
	assert.Equal(t, 500, cfg.Knowledge.DefaultChunkSize)
	assert.Equal(t, "heuristic", cfg.Retrieval.VectorBackend)
	assert.Equal(t, 90*time.Second, cfg.Queue.TaskTimeout)
	assert.Equal(t, "0 0 * * *", cfg.Quota.DailyCron)
	assert.Equal(t, "Asia/Shanghai", cfg.Quota.Location().String())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}
