package plugin

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/xyproto/unzip"
)

// ManifestFileName is the manifest entry at the root of every plugin
// archive.
const ManifestFileName = "info.json"

const (
	// removeAttempts bounds how often workspace cleanup is retried
	// before extraction proceeds over the stale directory.
	removeAttempts = 3
	retryDelay     = 100 * time.Millisecond
)

// ReadArchive reads and parses the manifest out of a plugin archive
// without extracting it.
func (m *ManifestReader) ReadArchive(archivePath string) (*Manifest, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open archive %s: %v", ErrMalformedPackage, archivePath, err)
	}
	defer zr.Close()

	f, err := zr.Open(ManifestFileName)
	if err != nil {
		return nil, fmt.Errorf("%w: archive %s has no %s: %v", ErrMalformedPackage, archivePath, ManifestFileName, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s from %s: %v", ErrMalformedPackage, ManifestFileName, archivePath, err)
	}

	return m.Parse(data)
}

// Extractor unpacks plugin archives into per-plugin workspace
// directories.
type Extractor struct {
	logger zerolog.Logger
}

// NewExtractor creates an archive extractor.
func NewExtractor(logger zerolog.Logger) *Extractor {
	return &Extractor{
		logger: logger.With().Str("component", "extractor").Logger(),
	}
}

// Extract unpacks archivePath into dir, replacing whatever a previous
// extraction left there. Removal of the old directory is retried a few
// times since handlers spawned from it may still be releasing files;
// if it cannot be removed the extraction proceeds over it.
func (e *Extractor) Extract(archivePath, dir string) error {
	for attempt := 1; attempt <= removeAttempts; attempt++ {
		err := os.RemoveAll(dir)
		if err == nil {
			break
		}
		if attempt == removeAttempts {
			e.logger.Warn().
				Err(err).
				Str("dir", dir).
				Msg("Workspace removal failed, extracting over it")
			break
		}
		time.Sleep(retryDelay)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create workspace %s: %v", ErrExtraction, dir, err)
	}

	if err := unzip.Extract(archivePath, dir); err != nil {
		return fmt.Errorf("%w: extract %s to %s: %v", ErrExtraction, archivePath, dir, err)
	}

	e.logger.Debug().
		Str("archive", archivePath).
		Str("dir", dir).
		Msg("Extracted plugin archive")

	return nil
}
