package stemmeta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"stemforge/internal/services"
)

// LoadFile reads stem entries (and optionally mastering settings) from a JSON
// or YAML file, chosen by extension. Fields absent from the file keep their
// defaults. The file may also be a bare list of entries.
func LoadFile(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, services.Wrap(services.ErrValidation, "", "load metadata file", filepath.Base(path), err)
	}
	m := Metadata{MasteringDSP: DefaultMastering(), Version: Version}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &m)
	case ".json", "":
		err = decodeJSON(data, &m)
	default:
		return Metadata{}, services.Wrap(services.ErrUnsupportedFormat, "", "load metadata file", fmt.Sprintf("extension %q", ext), nil)
	}
	if err != nil {
		return Metadata{}, services.Wrap(services.ErrValidation, "", "load metadata file", filepath.Base(path), err)
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, services.Wrap(services.ErrValidation, "", "load metadata file", filepath.Base(path), err)
	}
	return m, nil
}

func decodeJSON(data []byte, m *Metadata) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(data, &m.Stems)
	}
	return json.Unmarshal(data, m)
}

func decodeYAML(data []byte, m *Metadata) error {
	var probe any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, isList := probe.([]any); isList {
		return yaml.Unmarshal(data, &m.Stems)
	}
	return yaml.Unmarshal(data, m)
}

// WriteFile writes m as JSON (or YAML for .yaml/.yml paths).
func WriteFile(path string, m Metadata) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(m)
	default:
		data, err = Marshal(m)
	}
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
