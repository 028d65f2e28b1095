package storefront

import "time"

// Storefront is one merchant shop on the platform. The subdomain is the
// public identifier storefront requests arrive under; ThemeCode selects the
// theme module used to render it.
type Storefront struct {
	ID        string
	OwnerID   string
	Subdomain string
	Name      string
	ThemeCode string
	CreatedAt time.Time
	UpdatedAt time.Time
}
