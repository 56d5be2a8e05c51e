package schedule

import (
	"time"

	"github.com/google/uuid"
)

type TimeOffKind string

const (
	KindBreak          TimeOffKind = "break"
	KindUnavailability TimeOffKind = "unavailability"
)

// WeeklyWindow is one recurring open-hours interval for a professional.
// A weekday may carry several windows (split shifts). Times are "HH:MM".
type WeeklyWindow struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	Weekday        int // 0=Sunday .. 6=Saturday
	StartTime      string
	EndTime        string
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TimeOff is a recurring interval subtracted from the weekly windows
// when slots are generated.
type TimeOff struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	Weekday        int
	StartTime      string
	EndTime        string
	Kind           TimeOffKind
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
