package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"halwakitchen/internal/auth"
	"halwakitchen/internal/batch"
	"halwakitchen/internal/catalog"
	"halwakitchen/internal/database"
	"halwakitchen/internal/live"
	"halwakitchen/internal/models"
	"halwakitchen/internal/monitoring"
	"halwakitchen/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	return NewServer(
		catalog.NewService(db, logger),
		batch.NewService(db, logger, false),
		validation.NewService(db, logger),
		monitoring.NewCollector(),
		live.NewHub(logger),
		testSecret,
	)
}

func doJSON(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func operatorToken(t *testing.T, operator string) string {
	t.Helper()
	token, err := auth.NewToken(testSecret, operator, time.Hour)
	require.NoError(t, err)
	return token
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMutationsRequireIdentity(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "POST", "/api/v1/process-types", "", map[string]interface{}{
		"name": "Add Honey",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, s, "POST", "/api/v1/process-types", "not-a-token", map[string]interface{}{
		"name": "Add Honey",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDuplicateStepMappingConflict(t *testing.T) {
	s := newTestServer(t)
	token := operatorToken(t, "admin")

	w := doJSON(t, s, "POST", "/api/v1/process-types", token, map[string]interface{}{
		"name": "Add Honey", "standard_duration_minutes": 10, "variation_buffer_minutes": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var pt models.ProcessType
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pt))

	w = doJSON(t, s, "POST", "/api/v1/product-templates", token, map[string]interface{}{
		"name": "Sultaniya", "base_process_count": 1,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var tpl models.ProductTemplate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tpl))

	stepBody := map[string]interface{}{"process_type_id": pt.ID, "sequence_order": 1}
	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/product-templates/%d/steps", tpl.ID), token, stepBody)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/product-templates/%d/steps", tpl.ID), token, stepBody)
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "already mapped")
}

// Full happy path: configure one product, run a batch through the stopwatch,
// finish and validate it.
func TestBatchLifecycleEndToEnd(t *testing.T) {
	s := newTestServer(t)
	admin := operatorToken(t, "admin")
	op := operatorToken(t, "op1")
	chef := operatorToken(t, "chef")

	// registry + catalog
	typeIDs := make([]uint, 3)
	for i := range typeIDs {
		w := doJSON(t, s, "POST", "/api/v1/process-types", admin, map[string]interface{}{
			"name": fmt.Sprintf("step-%d", i+1), "standard_duration_minutes": 10, "variation_buffer_minutes": 2,
		})
		require.Equal(t, http.StatusCreated, w.Code)
		var pt models.ProcessType
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pt))
		typeIDs[i] = pt.ID
	}

	w := doJSON(t, s, "POST", "/api/v1/product-templates", admin, map[string]interface{}{
		"name": "Sultaniya", "base_process_count": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var tpl models.ProductTemplate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tpl))

	for i, id := range typeIDs {
		w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/product-templates/%d/steps", tpl.ID), admin,
			map[string]interface{}{"process_type_id": id, "sequence_order": i + 1})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	// batch creation materializes the merged steps
	w = doJSON(t, s, "POST", "/api/v1/batches", op, map[string]interface{}{
		"product_ids": []uint{tpl.ID}, "start_weight_kg": 20,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var b models.Batch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, string(models.BatchStatusInProgress), b.Status)

	w = doJSON(t, s, "GET", fmt.Sprintf("/api/v1/batches/%d/steps", b.ID), op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var instances []models.ProcessInstance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &instances))
	require.Len(t, instances, 3)

	// stopwatch
	for _, inst := range instances {
		w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/steps/%d/start", inst.ID), op,
			map[string]interface{}{"remarks": "go"})
		require.Equal(t, http.StatusOK, w.Code)
		w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/steps/%d/stop", inst.ID), op, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// double start is surfaced, not absorbed
	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/steps/%d/start", instances[0].ID), op, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// finish
	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/batches/%d/finish", b.ID), op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, string(models.BatchStatusCompleted), b.Status)
	require.NotNil(t, b.TotalDurationMinutes)

	// validate; instantaneous steps fall far below the 10-minute standard
	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/batches/%d/validate", b.ID), chef,
		map[string]interface{}{"comments": "spot check"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, string(models.BatchStatusValidated), b.Status)
	require.NotNil(t, b.ValidationStatus)
	assert.Equal(t, string(models.VerdictShiftDetected), *b.ValidationStatus)
	assert.Equal(t, "chef", b.ValidatedBy)

	// one-shot: a second validation is rejected
	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/batches/%d/validate", b.ID), chef, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// newest-first listing for the reporting consumer
	w = doJSON(t, s, "GET", "/api/v1/batches?limit=10", op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var batches []models.Batch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batches))
	require.Len(t, batches, 1)
}

func TestUnknownBatchIsNotFound(t *testing.T) {
	s := newTestServer(t)
	op := operatorToken(t, "op1")

	w := doJSON(t, s, "GET", "/api/v1/batches/9999", op, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
