package usecase

import (
	"context"

	"github.com/floralog/floralog"
)

// ObservationRepository defines storage and scan operations for observations.
type ObservationRepository interface {
	Create(ctx context.Context, rec floralog.Record) (uint64, error)
	Get(ctx context.Context, id uint64) (*floralog.Record, error)
	Annotate(ctx context.Context, id uint64, a floralog.Annotation) error
	AddVerification(ctx context.Context, id uint64, v floralog.VerificationEntry) error
	Hide(ctx context.Context, id uint64, reason *string) error
	List(ctx context.Context, q floralog.ListQuery) (floralog.Page, error)
	Count(ctx context.Context, f floralog.Filter) (uint64, error)
	StatsMonthly(ctx context.Context, f floralog.Filter, year uint32) ([12]uint64, error)
}

// RoleRepository answers who may verify and who administers the store.
type RoleRepository interface {
	IsAdmin(ctx context.Context, principal string) (bool, error)
	IsVerifier(ctx context.Context, principal string) (bool, error)
	SetVerifier(ctx context.Context, principal string, enabled bool) error
}

// EventPublisher pushes store events to the realtime channel.
type EventPublisher interface {
	Publish(ctx context.Context, event floralog.Event) error
}
