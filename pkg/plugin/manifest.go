package plugin

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// ManifestReader parses and validates plugin manifests.
type ManifestReader struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
}

// NewManifestReader creates a manifest reader.
func NewManifestReader(logger zerolog.Logger) *ManifestReader {
	return &ManifestReader{
		logger:       logger.With().Str("component", "manifest-reader").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(ManifestSchema),
	}
}

// Parse decodes and validates manifest bytes. Missing descriptive
// fields are filled with defaults; all failures wrap
// ErrMalformedPackage.
func (m *ManifestReader) Parse(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", ErrMalformedPackage, err)
	}

	if err := m.validateSchema(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}

	if err := validateTriggers(&manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}

	applyDefaults(&manifest)

	m.logger.Debug().
		Str("id", manifest.ID).
		Str("version", manifest.Version).
		Int("triggers", len(manifest.Triggers)).
		Msg("Parsed manifest")

	return &manifest, nil
}

// validateSchema validates the manifest against the JSON schema.
func (m *ManifestReader) validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(m.schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %v", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, schemaErr := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += schemaErr.String()
		}
		return fmt.Errorf("schema validation errors: %s", errMsg)
	}

	return nil
}

// validateTriggers enforces constraints the schema cannot express.
func validateTriggers(manifest *Manifest) error {
	seen := make(map[string]bool, len(manifest.Triggers))
	for i, trigger := range manifest.Triggers {
		if seen[trigger.ID] {
			return fmt.Errorf("trigger %d: duplicate trigger id %q", i, trigger.ID)
		}
		seen[trigger.ID] = true

		if trigger.HandlerName() == "" {
			return fmt.Errorf("trigger %d: no resolvable handler name", i)
		}
	}
	return nil
}

// applyDefaults fills descriptive fields the manifest omitted.
func applyDefaults(manifest *Manifest) {
	if manifest.Name == "" {
		manifest.Name = manifest.ID
	}
	if manifest.Description == "" {
		manifest.Description = "no description"
	}
	if manifest.Version == "" {
		manifest.Version = "1.0.0"
	}
	if manifest.Author == "" {
		manifest.Author = "Unknown"
	}
}
