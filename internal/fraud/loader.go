package fraud

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Artifacts is the set of model files loaded from the model directory.
// A nil Primary is valid and means the adapter runs on the fallback scorer.
type Artifacts struct {
	Primary      Estimator
	Ensemble     []Estimator
	Scaler       *StandardScaler
	FeatureNames []string
	Metadata     map[string]interface{}
}

var primaryModelFiles = []string{
	"fraud_model.json",
	"main_model.json",
	"classifier.json",
}

// LoadArtifacts reads model artifacts from dir. Individual missing files are
// tolerated; only an unreadable directory with partial content is an error.
func LoadArtifacts(dir string) (*Artifacts, error) {
	a := &Artifacts{}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Warn().Str("path", dir).Msg("Model directory does not exist, fallback scoring will be used")
		return a, nil
	}

	for _, name := range primaryModelFiles {
		est, err := loadEstimator(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("load primary model %s: %w", name, err)
		}
		a.Primary = est
		log.Info().Str("file", name).Str("model", est.Name()).Msg("Loaded primary model")
		break
	}
	if a.Primary == nil {
		log.Warn().Str("path", dir).Msg("No primary model found, fallback scoring will be used")
	}

	ensembleDir := filepath.Join(dir, "ensemble")
	if entries, err := os.ReadDir(ensembleDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			est, err := loadEstimator(filepath.Join(ensembleDir, entry.Name()))
			if err != nil {
				log.Warn().Err(err).Str("file", entry.Name()).Msg("Could not load ensemble model, skipping")
				continue
			}
			a.Ensemble = append(a.Ensemble, est)
			log.Info().Str("file", entry.Name()).Msg("Loaded ensemble model")
		}
	}

	if err := readJSONFile(filepath.Join(dir, "scaler.json"), &a.Scaler); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	if err := readJSONFile(filepath.Join(dir, "feature_names.json"), &a.FeatureNames); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load feature names: %w", err)
	}
	if err := readJSONFile(filepath.Join(dir, "metadata.json"), &a.Metadata); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Could not load model metadata, continuing without it")
	}

	return a, nil
}

func loadEstimator(path string) (Estimator, error) {
	var est LogisticEstimator
	if err := readJSONFile(path, &est); err != nil {
		return nil, err
	}
	if len(est.Weights) == 0 {
		return nil, fmt.Errorf("%s: model has no weights", filepath.Base(path))
	}
	if est.ModelName == "" {
		est.ModelName = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return &est, nil
}

func readJSONFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
