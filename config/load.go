package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

func LoadPipelineFromFile(path string) (*PipelineConfig, error) {
	cfg := PipelineConfig{}
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadBackupFromFile(path string) (*BackupConfig, error) {
	cfg := BackupConfig{}
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteFile encodes cfg to path, as YAML or JSON depending on the extension.
func WriteFile(path string, cfg any) error {
	var raw []byte
	var err error
	if isYAML(path) {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(cfg); err != nil {
			return err
		}
		if err = enc.Close(); err != nil {
			return err
		}
		raw = buf.Bytes()
	} else {
		raw, err = json.MarshalIndent(cfg, "", "\t")
		if err != nil {
			return err
		}
		raw = append(raw, '\n')
	}
	return os.WriteFile(path, raw, 0644)
}

func decodeFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("could not decode %s: %w", path, err)
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("could not decode %s: %w", path, err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
