package model_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/core/model"
	"github.com/ezoic/pricerange/preprocessing"
)

func fittedScaler(t *testing.T) *preprocessing.StandardScaler {
	t.Helper()
	s := preprocessing.NewStandardScaler()
	X := mat.NewDense(4, 2, []float64{
		1.0, 10.0,
		2.0, 20.0,
		3.0, 30.0,
		4.0, 40.0,
	})
	if err := s.Fit(X); err != nil {
		t.Fatalf("Failed to fit scaler: %v", err)
	}
	return s
}

func TestSaveLoadModel(t *testing.T) {
	s := fittedScaler(t)
	path := filepath.Join(t.TempDir(), "scaler.gob")

	if err := model.SaveModel(s, path); err != nil {
		t.Fatalf("Failed to save model: %v", err)
	}

	loaded := &preprocessing.StandardScaler{}
	if err := model.LoadModel(loaded, path); err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}

	if !loaded.IsFitted() {
		t.Error("Loaded model should be fitted")
	}

	row := []float64{5.0, 50.0}
	want, err := s.TransformRow(row)
	if err != nil {
		t.Fatalf("Failed to transform with original model: %v", err)
	}
	got, err := loaded.TransformRow(row)
	if err != nil {
		t.Fatalf("Failed to transform with loaded model: %v", err)
	}
	for j := range want {
		if want[j] != got[j] {
			t.Errorf("feature %d: original=%v, loaded=%v", j, want[j], got[j])
		}
	}
}

func TestSaveLoadModelToWriter(t *testing.T) {
	state := model.NewStateManager()
	state.SetDimensions(20, 1600)
	state.SetFitted()

	var buf bytes.Buffer
	if err := model.SaveModelToWriter(state, &buf); err != nil {
		t.Fatalf("Failed to save model to writer: %v", err)
	}

	loaded := &model.StateManager{}
	if err := model.LoadModelFromReader(loaded, &buf); err != nil {
		t.Fatalf("Failed to load model from reader: %v", err)
	}

	if !loaded.IsFitted() {
		t.Error("Loaded state should be fitted")
	}
	if f, n := loaded.GetDimensions(); f != 20 || n != 1600 {
		t.Errorf("Dimensions do not match: got (%d, %d)", f, n)
	}
}

func TestLoadModelFileNotFound(t *testing.T) {
	err := model.LoadModel(&preprocessing.StandardScaler{}, filepath.Join(t.TempDir(), "missing.gob"))
	if err == nil {
		t.Fatal("Expected error for nonexistent file, got nil")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("failed to open file")) {
		t.Errorf("Expected error to contain 'failed to open file', got: %v", err)
	}
}

func TestSaveModelInvalidPath(t *testing.T) {
	err := model.SaveModel(fittedScaler(t), filepath.Join(t.TempDir(), "no", "such", "dir", "model.gob"))
	if err == nil {
		t.Fatal("Expected error for invalid path, got nil")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("failed to create file")) {
		t.Errorf("Expected error to contain 'failed to create file', got: %v", err)
	}
}

func TestLoadModelCorrupted(t *testing.T) {
	err := model.LoadModelFromReader(&preprocessing.StandardScaler{}, bytes.NewBufferString("not gob"))
	if err == nil {
		t.Fatal("Expected error for corrupted data, got nil")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("failed to decode model")) {
		t.Errorf("Expected error to contain 'failed to decode model', got: %v", err)
	}
}
