// Package template defines the composition data model: per-page templates, the
// section instances placed on them, and the nested blocks inside a section.
package template

import "time"

// Page template types with platform-level meaning. Custom page slugs are
// also valid template types.
const (
	TypeHomepage   = "homepage"
	TypeProduct    = "product"
	TypeCollection = "collection"
	TypePage       = "page"
)

// Global section types. These are defined once on a storefront's homepage
// template and reused on every page.
const (
	SectionAnnouncementBar = "announcement-bar"
	SectionHeader          = "header"
	SectionFooter          = "footer"
)

// IsGlobalSectionType reports whether the section type is one of the global
// slots (announcement bar, header, footer).
func IsGlobalSectionType(sectionType string) bool {
	switch sectionType {
	case SectionAnnouncementBar, SectionHeader, SectionFooter:
		return true
	}
	return false
}

// Template is one page type's composition for one storefront. Sections are
// ordered by Position ascending; positions need not be contiguous.
type Template struct {
	ID           string
	StorefrontID string
	ThemeCode    string
	TemplateType string
	Name         string
	IsDefault    bool
	Enabled      bool
	Settings     map[string]interface{}
	SEOSettings  map[string]interface{}
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SectionInstance is one placed section on a template. Settings are held in
// canonical nested form; dot-qualified keys exist only at the persistence
// boundary.
type SectionInstance struct {
	ID          string
	TemplateID  string
	SectionType string
	Settings    map[string]interface{}
	Position    int
	Enabled     bool
	Blocks      []BlockInstance
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BlockInstance is a nested child of a section (e.g. a menu link in a
// header), ordered by Position ascending within its parent.
type BlockInstance struct {
	ID        string
	SectionID string
	BlockType string
	Settings  map[string]interface{}
	Position  int
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GlobalSections is the derived announcement-bar/header/footer triple for a
// storefront+theme. Any slot may be nil; absence is valid.
type GlobalSections struct {
	AnnouncementBar *SectionInstance `json:"announcement_bar"`
	Header          *SectionInstance `json:"header"`
	Footer          *SectionInstance `json:"footer"`
}
