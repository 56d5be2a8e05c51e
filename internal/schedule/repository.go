package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrWindowNotFound  = errors.New("schedule window not found")
	ErrTimeOffNotFound = errors.New("time off entry not found")
)

// Repository contains all DB interactions needed for schedule management.
type Repository interface {
	ListWindows(ctx context.Context, professionalID uuid.UUID) ([]WeeklyWindow, error)
	UpsertWindow(ctx context.Context, w WeeklyWindow) (*WeeklyWindow, error)
	DeleteWindow(ctx context.Context, professionalID, id uuid.UUID) error

	ListTimeOff(ctx context.Context, professionalID uuid.UUID) ([]TimeOff, error)
	UpsertTimeOff(ctx context.Context, t TimeOff) (*TimeOff, error)
	DeleteTimeOff(ctx context.Context, professionalID, id uuid.UUID) error
}

// CacheInvalidator drops any cached slots for a professional after a
// schedule write. The slot cache implements it; tests pass nil-ops.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, professionalID uuid.UUID)
}
