// Package system manages the lifecycle of long-running application
// components: registration, ordered start, reverse-ordered stop.
package system

import "context"

// Service is a lifecycle-managed component. Background pieces of the
// platform (cache janitor, invalidation listener) implement it so the
// manager can start and stop them deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService satisfies Service for components that have no background
// work but should appear in the managed set.
type NoopService struct {
	ServiceName string
}

func (s NoopService) Name() string                { return s.ServiceName }
func (s NoopService) Start(context.Context) error { return nil }
func (s NoopService) Stop(context.Context) error  { return nil }
