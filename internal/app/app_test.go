package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/appendix/internal/config"
	"github.com/crimson-sun/appendix/internal/engine/scaler"
	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/output/csvfile"
	"github.com/crimson-sun/appendix/internal/predictor"
	"github.com/crimson-sun/appendix/internal/schema"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Models:  config.ModelsConfig{Dir: filepath.Join(dir, "models"), RuntimeLib: filepath.Join(dir, "models", "libonnxruntime.so")},
		Audit:   config.AuditConfig{Path: filepath.Join(dir, "data", "inferred_patients.csv")},
		Engine:  config.EngineConfig{UnknownCategory: "warn"},
		Logging: config.LoggingConfig{Level: "info"},
	}
}

func completeObservation(cat *schema.Catalogue) model.Observation {
	obs := model.NewObservation()
	for _, name := range cat.NumericNames() {
		obs.Numeric[name] = 5
	}
	obs.Categorical["Sex"] = "male"
	return obs
}

func TestOpenWithoutArtifacts(t *testing.T) {
	cfg := testConfig(t)

	a, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Engine.HasScaler())
	for st, ok := range a.Predictors.Available() {
		assert.False(t, ok, "stage %s", st)
	}
	assert.Nil(t, a.History)

	rec, err := a.Pipeline.Infer(context.Background(), completeObservation(a.Catalogue))
	require.NoError(t, err)
	assert.Equal(t, model.ErrorLabel, rec.Outcome.Diagnosis.Label())

	header, rows, err := csvfile.ReadAll(cfg.Audit.Path)
	require.NoError(t, err)
	assert.NotEmpty(t, header)
	require.Len(t, rows, 1)
}

func TestOpenWithScalerOnly(t *testing.T) {
	cfg := testConfig(t)
	cat, err := schema.Default()
	require.NoError(t, err)

	names := cat.NumericNames()
	lo, hi := map[string]float64{}, map[string]float64{}
	for _, n := range names {
		lo[n], hi[n] = 0, 10
	}
	sc, err := scaler.Fit(names, []map[string]float64{lo, hi})
	require.NoError(t, err)
	require.NoError(t, sc.Save(scaler.Path(cfg.Models.Dir)))

	cfg.Audit.DB = filepath.Join(t.TempDir(), "audit.db")
	a, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Engine.HasScaler())
	require.NotNil(t, a.History)

	rec, err := a.Pipeline.Infer(context.Background(), completeObservation(cat))
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, rec.Outcome.Diagnosis.Status)
	assert.ErrorIs(t, rec.Outcome.Diagnosis.Err, predictor.ErrArtifactNotFound)
	assert.Equal(t, "5", rec.Attributes["Age"])

	entries, err := a.History.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rec.ID, entries[0].ID)
}

func TestHistoryFailureKeepsAuditTable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.DB = filepath.Join(t.TempDir(), "audit.db")
	a, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	// A closed database fails every write.
	require.NoError(t, a.History.Close())

	_, err = a.Pipeline.Infer(context.Background(), completeObservation(a.Catalogue))
	require.NoError(t, err, "secondary sink failures are not inference failures")

	_, rows, err := csvfile.ReadAll(cfg.Audit.Path)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.UnknownCategory = "ignore"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenForwardsToWebhook(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var batch []struct {
			ID string `json:"id"`
		}
		json.Unmarshal(body, &batch)
		mu.Lock()
		for _, d := range batch {
			ids = append(ids, d.ID)
		}
		mu.Unlock()
	}))
	defer hook.Close()

	cfg := testConfig(t)
	cfg.Audit.WebhookURL = hook.URL
	a, err := Open(context.Background(), cfg)
	require.NoError(t, err)

	rec, err := a.Pipeline.Infer(context.Background(), completeObservation(a.Catalogue))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{rec.ID}, ids)
}
