package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrEntryNotFound = errors.New("waitlist entry not found")

// Repository contains all DB interactions needed by the lifecycle
// manager.
type Repository interface {
	CreateEntry(ctx context.Context, e Entry) (*Entry, error)
	GetEntryByToken(ctx context.Context, token string) (*Entry, error)

	// OldestEligiblePending picks the dispatch target for a freed slot:
	// the earliest-created pending entry (id as tiebreak) whose preferred
	// range overlaps the interval and whose service, when set, matches.
	OldestEligiblePending(ctx context.Context, professionalID uuid.UUID, serviceID *uuid.UUID, date time.Time, startTime, endTime string) (*Entry, error)

	// MarkNotified opens the priority window; conditional on the entry
	// still being pending.
	MarkNotified(ctx context.Context, id uuid.UUID, notifiedAt, expiresAt time.Time, date time.Time, startTime, endTime string) (*Entry, error)

	// UpdateStatus is a compare-and-swap on status; ErrEntryNotFound when
	// the row is gone or no longer in the expected state.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Entry, error)

	// FindLapsedNotified lists notified entries whose window has passed.
	FindLapsedNotified(ctx context.Context, now time.Time) ([]Entry, error)
}
