package tags

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"stemforge/internal/fileutil"
	"stemforge/internal/services"
)

// LoadFile reads an explicit tag file: a JSON or YAML object whose keys are
// vocabulary names. Scalar values of any type are stored as text.
func LoadFile(path string) (TagSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, services.StageTag, "load tag file", filepath.Base(path), err)
	}
	values := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &values)
	case ".json", "":
		err = json.Unmarshal(data, &values)
	default:
		return nil, services.Wrap(services.ErrUnsupportedFormat, services.StageTag, "load tag file", fmt.Sprintf("extension %q", ext), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, services.StageTag, "load tag file", filepath.Base(path), err)
	}
	return FromMap(values)
}

// WriteFile stores set as JSON (or YAML for .yaml/.yml paths).
func WriteFile(path string, set TagSet) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(set.Map())
	default:
		data, err = json.MarshalIndent(set.Map(), "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}
