package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/ezoic/pricerange/pkg/errors"
)

// SaveModel writes m to filename with encoding/gob. The model's learned
// parameters must be exported fields.
func SaveModel(m interface{}, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", filename)
	}
	if err := SaveModelToWriter(m, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close file %s", filename)
	}
	return nil
}

// LoadModel decodes a model written by SaveModel into m, which must be a
// pointer to the same type.
func LoadModel(m interface{}, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open file %s", filename)
	}
	defer func() { _ = f.Close() }()
	return LoadModelFromReader(m, f)
}

// SaveModelToWriter gob-encodes m to w.
func SaveModelToWriter(m interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader gob-decodes r into m.
func LoadModelFromReader(m interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(m); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
