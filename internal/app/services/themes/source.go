package themes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shoplight/storefront/internal/app/domain/theme"
)

// ManifestSource resolves a theme code to its manifest. Sources report a
// missing theme with ErrManifestMissing so the registry can distinguish
// absence from a broken manifest; either way the registry falls back to the
// base theme.
type ManifestSource interface {
	Load(code string) (theme.Manifest, error)
}

// ErrManifestMissing signals that a source has no manifest for the code.
var ErrManifestMissing = fmt.Errorf("theme manifest missing")

// DirSource loads manifests from <dir>/<code>/theme.yaml.
type DirSource struct {
	dir string
}

// NewDirSource creates a source rooted at the given themes directory.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Load(code string) (theme.Manifest, error) {
	code = strings.TrimSpace(code)
	if code == "" || strings.ContainsAny(code, `/\`) {
		return theme.Manifest{}, fmt.Errorf("theme %q: %w", code, ErrManifestMissing)
	}

	path := filepath.Join(s.dir, code, "theme.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return theme.Manifest{}, fmt.Errorf("theme %s: %w", code, ErrManifestMissing)
		}
		return theme.Manifest{}, fmt.Errorf("read theme manifest %s: %w", path, err)
	}

	var manifest theme.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return theme.Manifest{}, fmt.Errorf("parse theme manifest %s: %w", path, err)
	}
	if manifest.Code == "" {
		manifest.Code = code
	}
	if manifest.Code != code {
		return theme.Manifest{}, fmt.Errorf("theme manifest %s declares code %q", path, manifest.Code)
	}
	return manifest, nil
}

// StaticSource serves manifests from a fixed map. Used in tests and for
// embedding a known theme set.
type StaticSource map[string]theme.Manifest

func (s StaticSource) Load(code string) (theme.Manifest, error) {
	manifest, ok := s[code]
	if !ok {
		return theme.Manifest{}, fmt.Errorf("theme %s: %w", code, ErrManifestMissing)
	}
	if manifest.Code == "" {
		manifest.Code = code
	}
	return manifest, nil
}
