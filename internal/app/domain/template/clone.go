package template

// Clone returns a deep copy of the template.
func (t Template) Clone() Template {
	t.Settings = CloneSettings(t.Settings)
	t.SEOSettings = CloneSettings(t.SEOSettings)
	return t
}

// Clone returns a deep copy of the section instance, including its blocks.
func (s SectionInstance) Clone() SectionInstance {
	s.Settings = CloneSettings(s.Settings)
	if s.Blocks != nil {
		blocks := make([]BlockInstance, len(s.Blocks))
		for i, block := range s.Blocks {
			blocks[i] = block.Clone()
		}
		s.Blocks = blocks
	}
	return s
}

// Clone returns a deep copy of the block instance.
func (b BlockInstance) Clone() BlockInstance {
	b.Settings = CloneSettings(b.Settings)
	return b
}

// Clone returns a deep copy of the triple. Nil slots stay nil.
func (g GlobalSections) Clone() GlobalSections {
	clone := GlobalSections{}
	if g.AnnouncementBar != nil {
		copied := g.AnnouncementBar.Clone()
		clone.AnnouncementBar = &copied
	}
	if g.Header != nil {
		copied := g.Header.Clone()
		clone.Header = &copied
	}
	if g.Footer != nil {
		copied := g.Footer.Clone()
		clone.Footer = &copied
	}
	return clone
}
