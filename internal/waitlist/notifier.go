package waitlist

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier delivers the priority-booking message for a freshly notified
// entry. Delivery is best-effort: a failure is logged by the caller and
// the entry still expires on schedule, since channel retries belong to
// the delivery collaborator.
type Notifier interface {
	Notify(ctx context.Context, e Entry) error
}

// LogNotifier stands in for the email/SMS collaborator in environments
// without one configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "waitlist_notifier").Logger()}
}

func (n *LogNotifier) Notify(ctx context.Context, e Entry) error {
	ev := n.log.Info().
		Str("entry_id", e.ID.String()).
		Str("token", e.Token)
	if e.OfferedDate != nil {
		ev = ev.Str("offered_date", e.OfferedDate.Format("2006-01-02"))
	}
	if e.OfferedStart != nil {
		ev = ev.Str("offered_start", *e.OfferedStart)
	}
	if e.ExpiresAt != nil {
		ev = ev.Time("expires_at", *e.ExpiresAt)
	}
	ev.Msg("waitlist priority notification")
	return nil
}
