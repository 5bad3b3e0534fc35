package eventlog

import (
	"context"
	"time"

	slicetools "github.com/madeneat/wplogify/pkg/sliceTools"
)

// Repository stores finalized events. Save returns the stored copy with its
// id set; the argument is left untouched.
type Repository interface {
	// Save persists a single event.
	Save(ctx context.Context, event *Event) (*Event, error)

	// FindByID returns ErrEventNotFound when no event has id.
	FindByID(ctx context.Context, id int64) (*Event, error)

	// Query retrieves events newest first.
	Query(ctx context.Context, query *EventQuery) (*EventQueryResult, error)

	// LatestByActorAndType returns the newest event of eventType by the user,
	// or ErrEventNotFound.
	LatestByActorAndType(ctx context.Context, userID int64, eventType string) (*Event, error)

	// UpdateMetas upserts metas on a stored event and returns the result.
	UpdateMetas(ctx context.Context, id int64, metas *MetaSet) (*Event, error)

	// DeleteOlderThan removes events that occurred before date and reports
	// how many were removed.
	DeleteOlderThan(ctx context.Context, date time.Time) (int64, error)

	// Stats summarizes events between start and end.
	Stats(ctx context.Context, start, end time.Time) (*EventStats, error)

	// Close releases the repository resources.
	Close() error

	// Health checks if the repository is reachable.
	Health(ctx context.Context) error
}

// EventQuery filters stored events. Zero fields do not filter.
type EventQuery struct {
	EventTypes  []string
	ActorID     *int64
	SubjectKind EntityKind
	SubjectKey  string
	StartDate   time.Time
	EndDate     time.Time
	Limit       int
	Offset      int
}

const defaultQueryLimit = 100

func (q *EventQuery) limit() int {
	if q.Limit <= 0 {
		return defaultQueryLimit
	}
	return q.Limit
}

func (q *EventQuery) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// EventQueryResult wraps a page of events.
type EventQueryResult struct {
	Total  int64    `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
	Events []*Event `json:"events"`
}

// EventStats summarizes a period of activity.
type EventStats struct {
	Start               time.Time        `json:"start"`
	End                 time.Time        `json:"end"`
	TotalRecords        int64            `json:"total_records"`
	TypeCounts          map[string]int64 `json:"type_counts"`
	UniqueActors        int64            `json:"unique_actors"`
	UniqueSubjects      int64            `json:"unique_subjects"`
	AveragePropsChanged float64          `json:"average_props_changed"`
}

// dedupeMemberships drops repeated references within each side of every
// dimension, keeping first occurrences in order.
func dedupeMemberships(ms []MembershipChange) []MembershipChange {
	if len(ms) == 0 {
		return ms
	}
	out := make([]MembershipChange, len(ms))
	for i, m := range ms {
		out[i] = MembershipChange{
			Dimension: m.Dimension,
			Added:     slicetools.Unique(appendReferences(nil, m.Added), referenceIdentity),
			Removed:   slicetools.Unique(appendReferences(nil, m.Removed), referenceIdentity),
		}
	}
	return out
}

func appendReferences(dst, refs []*EntityReference) []*EntityReference {
	for _, r := range refs {
		if r != nil {
			dst = append(dst, r)
		}
	}
	return dst
}

type referenceID struct {
	kind EntityKind
	key  Key
}

func referenceIdentity(r *EntityReference) referenceID {
	return referenceID{kind: r.kind, key: r.key}
}
