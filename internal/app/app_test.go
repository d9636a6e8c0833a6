package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnmate-backend/internal/config"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// offlineConfig configures only local storage, so every optional backend is
// left unwired.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "NEO4J_URI", "REDIS_ADDR", "PINECONE_API_KEY", "PINECONE_INDEX_HOST",
		"VECTOR_SEARCH_URL", "SERPER_API_KEY", "BRAVE_API_KEY", "TEMPORAL_ADDRESS", "DATABASE_URL",
	} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "learnmate.yaml")
	body := fmt.Sprintf(`
database:
  driver: sqlite
  dsn: %q
pipeline:
  progress_dir: %q
  retry_delay: 0s
assessment:
  session_dir: %q
telemetry:
  metrics_enabled: false
`, filepath.Join(dir, "app.db"), filepath.Join(dir, "progress"), filepath.Join(dir, "sessions"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestOfflineAppGeneratesFallbackCurriculum(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := New(context.Background(), logger.Nop(), offlineConfig(t), Options{WithTemporal: true})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Nil(t, a.Clients.OpenAI)
	assert.Nil(t, a.Clients.Vector)
	assert.Nil(t, a.Clients.Temporal)

	r := a.Router()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	payload, _ := json.Marshal(map[string]string{"topic": "SQL", "constraints": "3주"})
	req := httptest.NewRequest(http.MethodPost, "/api/curriculum", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		CurriculumID string           `json:"curriculum_id"`
		Curriculum   state.Curriculum `json:"curriculum"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.CurriculumID)
	assert.Equal(t, 3, out.Curriculum.DurationWeeks)
	assert.Len(t, out.Curriculum.Modules, 3)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/curriculum/"+out.CurriculumID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunWorkerRequiresTemporal(t *testing.T) {
	a, err := New(context.Background(), logger.Nop(), offlineConfig(t), Options{})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	assert.Error(t, a.RunWorker(context.Background()))
}

func TestPipelineRetryDelay(t *testing.T) {
	assert.Equal(t, time.Duration(-1), pipelineRetryDelay(0))
	assert.Equal(t, 2*time.Second, pipelineRetryDelay(2*time.Second))
}
