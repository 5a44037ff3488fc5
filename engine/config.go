// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a configuration file.
// The format is chosen by extension: .toml, .yaml or
// .yml. Fields missing from the file keep their default
// values and unknown fields are an error.
// The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "engine: reading configuration")
	}
	if err = decodeConfig(&cfg, filepath.Ext(path), b); err != nil {
		return cfg, errors.Wrapf(err, "engine: %s", path)
	}
	return cfg, cfg.Validate()
}

func decodeConfig(cfg *Config, ext string, b []byte) error {
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		err := dec.Decode(cfg)
		if err == io.EOF {
			// Empty document.
			return nil
		}
		return err
	}
	return errors.Wrapf(ErrConfig, "unknown configuration format %q", ext)
}
