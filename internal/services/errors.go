package services

import (
	"errors"
	"strings"
)

var (
	ErrInvalidStemCount   = errors.New("invalid stem count")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrExternalTool       = errors.New("external tool error")
	ErrChannelMismatch    = errors.New("channel mismatch")
	ErrIntegrityViolation = errors.New("integrity violation")
	ErrNotChannelPacked   = errors.New("not channel packed")
	ErrMetadataBoxCorrupt = errors.New("metadata box corrupt")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrNotFound           = errors.New("not found")
)

// Pipeline stage names stamped onto wrapped errors and log lines.
const (
	StageNormalize = "normalize"
	StageMux       = "mux"
	StageTag       = "tag"
	StageProbe     = "probe"
	StageExtract   = "extract"
	StageVerify    = "verify"
)

var markers = []error{
	ErrInvalidStemCount,
	ErrUnsupportedFormat,
	ErrExternalTool,
	ErrChannelMismatch,
	ErrIntegrityViolation,
	ErrNotChannelPacked,
	ErrMetadataBoxCorrupt,
	ErrValidation,
	ErrConfiguration,
	ErrNotFound,
}

// StageError records which pipeline stage failed alongside the marker used
// for classification and the underlying cause.
type StageError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Err       error
}

func (e *StageError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Err != nil {
		return e.Marker.Error() + ": " + detail + ": " + e.Err.Error()
	}
	return e.Marker.Error() + ": " + detail
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Err}
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrExternalTool
	}
	return &StageError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// StageOf returns the innermost stage recorded on err, or "" when none.
func StageOf(err error) string {
	stage := ""
	for err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			break
		}
		if se.Stage != "" {
			stage = se.Stage
		}
		err = se.Err
	}
	return stage
}

// Marker reports the first sentinel error matched by err, or nil.
func Marker(err error) error {
	if err == nil {
		return nil
	}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "stem codec failure"
	}
	return strings.Join(parts, ": ")
}
