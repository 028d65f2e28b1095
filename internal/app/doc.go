// Package app composes the storefront services into a running application.
//
// The package wires domain models, storage, services, and the HTTP API
// together. Business logic lives in internal/app/services/; this layer only
// assembles it.
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── storefront/     # Merchant storefronts
//	│   ├── theme/          # Theme manifests, section and block schemas
//	│   └── template/       # Page templates, sections, blocks, settings
//	├── services/
//	│   ├── themes/         # Theme registry and schema catalog
//	│   ├── composition/    # Template resolution and global sections
//	│   ├── customization/  # Merchant edits
//	│   ├── storefronts/    # Storefront provisioning
//	│   └── invalidation/   # Cache invalidation, local and Redis pub/sub
//	├── storage/            # Store interfaces with memory and postgres backends
//	├── httpapi/            # HTTP handlers and audit trail
//	├── system/             # Background service lifecycle
//	└── metrics/            # Prometheus metrics
//
// Adding a new domain follows the same path each time: models under
// domain/, a store interface in storage/interfaces.go implemented by both
// backends, a service under services/, wiring in application.go, and
// handlers in httpapi/.
package app
