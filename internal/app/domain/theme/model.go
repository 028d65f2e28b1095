// Package theme defines the data model for theme modules: the manifest a
// theme ships, the section and block types it registers, and the settings
// schemas that supply defaults during composition.
package theme

// BaseCode is the designated fallback theme. Lookups that miss in a
// requested theme retry against this one.
const BaseCode = "base"

// RendererRef identifies a renderer registered by a theme. The rendering
// layer maps Component to actual output; this subsystem only carries the
// reference through.
type RendererRef struct {
	Theme     string `json:"theme" yaml:"-"`
	Kind      string `json:"kind" yaml:"-"`
	Type      string `json:"type" yaml:"-"`
	Component string `json:"component" yaml:"component"`
}

// Renderer kinds.
const (
	KindSection = "section"
	KindBlock   = "block"
)

// SchemaField describes one settings field with its default value. Keys may
// be dot-qualified (e.g. "colors.primary").
type SchemaField struct {
	Key     string      `json:"key" yaml:"key"`
	Type    string      `json:"type" yaml:"type"`
	Label   string      `json:"label,omitempty" yaml:"label,omitempty"`
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// Schema is the settings schema for a section or block type.
type Schema struct {
	Fields []SchemaField `json:"fields" yaml:"fields"`
}

// Defaults returns the schema's default settings as a flat dot-keyed map.
// Fields without a default are omitted.
func (s *Schema) Defaults() map[string]interface{} {
	if s == nil || len(s.Fields) == 0 {
		return nil
	}
	defaults := make(map[string]interface{}, len(s.Fields))
	for _, field := range s.Fields {
		if field.Default == nil {
			continue
		}
		defaults[field.Key] = field.Default
	}
	return defaults
}

// SectionDef declares one section type in a manifest.
type SectionDef struct {
	Component string  `json:"component" yaml:"component"`
	Schema    *Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// BlockDef declares one block type in a manifest.
type BlockDef struct {
	Component string  `json:"component" yaml:"component"`
	Schema    *Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Manifest is the declaration a theme ships: identity, theme-wide default
// settings, supported features, and the section/block types it registers.
type Manifest struct {
	Code     string                 `json:"code" yaml:"code"`
	Name     string                 `json:"name" yaml:"name"`
	Version  string                 `json:"version" yaml:"version"`
	Settings map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty"`
	Features []string               `json:"features,omitempty" yaml:"features,omitempty"`
	Sections map[string]SectionDef  `json:"sections" yaml:"sections"`
	Blocks   map[string]BlockDef    `json:"blocks,omitempty" yaml:"blocks,omitempty"`
}

// Module is one loaded theme. It is immutable after construction; the
// registry memoizes one instance per theme code for the process lifetime.
type Module struct {
	Code     string
	Manifest Manifest
}

// NewModule builds a module from a manifest.
func NewModule(manifest Manifest) *Module {
	return &Module{Code: manifest.Code, Manifest: manifest}
}

// Section resolves a section type to its renderer reference.
func (m *Module) Section(sectionType string) (RendererRef, bool) {
	def, ok := m.Manifest.Sections[sectionType]
	if !ok {
		return RendererRef{}, false
	}
	return RendererRef{Theme: m.Code, Kind: KindSection, Type: sectionType, Component: def.Component}, true
}

// Block resolves a block type to its renderer reference.
func (m *Module) Block(blockType string) (RendererRef, bool) {
	def, ok := m.Manifest.Blocks[blockType]
	if !ok {
		return RendererRef{}, false
	}
	return RendererRef{Theme: m.Code, Kind: KindBlock, Type: blockType, Component: def.Component}, true
}

// SectionSchema returns the settings schema for a section type, or nil if
// the type has none.
func (m *Module) SectionSchema(sectionType string) *Schema {
	def, ok := m.Manifest.Sections[sectionType]
	if !ok {
		return nil
	}
	return def.Schema
}

// BlockSchema returns the settings schema for a block type, or nil.
func (m *Module) BlockSchema(blockType string) *Schema {
	def, ok := m.Manifest.Blocks[blockType]
	if !ok {
		return nil
	}
	return def.Schema
}

// HasFeature reports whether the manifest lists the named feature flag.
func (m *Module) HasFeature(name string) bool {
	for _, feature := range m.Manifest.Features {
		if feature == name {
			return true
		}
	}
	return false
}
