package fraud

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadArtifactsMissingDirectory(t *testing.T) {
	a, err := LoadArtifacts(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Nil(t, a.Primary)
	assert.Empty(t, a.Ensemble)
}

func TestLoadArtifactsEmptyDirectory(t *testing.T) {
	a, err := LoadArtifacts(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, a.Primary)
}

func TestLoadArtifactsFull(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "fraud_model.json"),
		`{"name":"logreg-v1","weights":[0.1,0.2,0.3],"intercept":-0.5}`)
	writeFile(t, filepath.Join(dir, "ensemble", "member_a.json"),
		`{"weights":[0.4,0.5,0.6],"intercept":0}`)
	writeFile(t, filepath.Join(dir, "ensemble", "member_b.json"),
		`{"weights":[0.7,0.8,0.9],"intercept":0.1}`)
	writeFile(t, filepath.Join(dir, "ensemble", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "scaler.json"),
		`{"mean":[1,2,3],"scale":[0.5,1,2]}`)
	writeFile(t, filepath.Join(dir, "feature_names.json"),
		`["amount","amount_log","is_night"]`)
	writeFile(t, filepath.Join(dir, "metadata.json"),
		`{"version":"2024-01","auc":0.91}`)

	a, err := LoadArtifacts(dir)
	require.NoError(t, err)

	require.NotNil(t, a.Primary)
	assert.Equal(t, "logreg-v1", a.Primary.Name())
	assert.Len(t, a.Ensemble, 2)
	require.NotNil(t, a.Scaler)
	assert.Equal(t, []float64{1, 2, 3}, a.Scaler.Mean)
	assert.Equal(t, []string{"amount", "amount_log", "is_night"}, a.FeatureNames)
	assert.Equal(t, "2024-01", a.Metadata["version"])
}

func TestLoadArtifactsNameDefaultsToFileName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "fraud_model.json"), `{"weights":[1],"intercept":0}`)

	a, err := LoadArtifacts(dir)
	require.NoError(t, err)
	require.NotNil(t, a.Primary)
	assert.Equal(t, "fraud_model", a.Primary.Name())
}

func TestLoadArtifactsBrokenEnsembleMemberSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "fraud_model.json"), `{"weights":[1],"intercept":0}`)
	writeFile(t, filepath.Join(dir, "ensemble", "good.json"), `{"weights":[1],"intercept":0}`)
	writeFile(t, filepath.Join(dir, "ensemble", "bad.json"), `{not json`)
	writeFile(t, filepath.Join(dir, "ensemble", "empty.json"), `{"weights":[],"intercept":0}`)

	a, err := LoadArtifacts(dir)
	require.NoError(t, err)
	assert.Len(t, a.Ensemble, 1)
}

func TestLoadArtifactsBrokenPrimaryIsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "fraud_model.json"), `{broken`)

	_, err := LoadArtifacts(dir)
	assert.Error(t, err)
}

func TestLoadedModelScores(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "fraud_model.json"),
		`{"name":"logreg","weights":[0,0],"intercept":0}`)
	writeFile(t, filepath.Join(dir, "feature_names.json"), `["amount","is_night"]`)

	a, err := LoadArtifacts(dir)
	require.NoError(t, err)

	adapter := NewModelAdapter(0.5)
	adapter.Reload(a)

	pred := adapter.Score(ExtractFeatures(validTx("TXN070")))
	assert.InDelta(t, 0.5, pred.FraudScore, 1e-9)
	assert.True(t, pred.ModelUsed)
}
