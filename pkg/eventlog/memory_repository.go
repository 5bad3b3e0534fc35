package eventlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps events in process memory. It backs tests and
// deployments without a database.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[int64]*Event
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[int64]*Event)}
}

func (m *MemoryRepository) Save(ctx context.Context, event *Event) (*Event, error) {
	if event == nil {
		return nil, ErrNilEvent
	}
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	saved := event.withID(m.nextID)
	saved.memberships = dedupeMemberships(saved.memberships)
	m.events[saved.id] = saved

	return saved, nil
}

func (m *MemoryRepository) FindByID(ctx context.Context, id int64) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	event, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrEventNotFound, id)
	}
	return event, nil
}

func (m *MemoryRepository) Query(ctx context.Context, query *EventQuery) (*EventQueryResult, error) {
	if query == nil {
		query = &EventQuery{}
	}

	m.mu.RLock()
	matched := make([]*Event, 0, len(m.events))
	for _, event := range m.events {
		if matchesQuery(event, query) {
			matched = append(matched, event)
		}
	}
	m.mu.RUnlock()

	sortNewestFirst(matched)

	limit := query.limit()
	total := len(matched)
	start := query.offset()
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &EventQueryResult{
		Total:  int64(total),
		Limit:  limit,
		Offset: query.offset(),
		Events: matched[start:end],
	}, nil
}

func (m *MemoryRepository) LatestByActorAndType(ctx context.Context, userID int64, eventType string) (*Event, error) {
	result, err := m.Query(ctx, &EventQuery{ActorID: &userID, EventTypes: []string{eventType}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(result.Events) == 0 {
		return nil, fmt.Errorf("%w: no %q event for user %d", ErrEventNotFound, eventType, userID)
	}
	return result.Events[0], nil
}

func (m *MemoryRepository) UpdateMetas(ctx context.Context, id int64, metas *MetaSet) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrEventNotFound, id)
	}
	updated := event.withMetas(metas)
	m.events[id] = updated
	return updated, nil
}

func (m *MemoryRepository) DeleteOlderThan(ctx context.Context, date time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, event := range m.events {
		if event.occurredAt.Before(date) {
			delete(m.events, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryRepository) Stats(ctx context.Context, start, end time.Time) (*EventStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &EventStats{Start: start, End: end, TypeCounts: make(map[string]int64)}
	actors := make(map[int64]bool)
	subjects := make(map[string]bool)
	var totalProps int64

	for _, event := range m.events {
		if event.occurredAt.Before(start) || event.occurredAt.After(end) {
			continue
		}

		stats.TotalRecords++
		stats.TypeCounts[event.eventType]++
		actors[event.actor.UserID] = true
		if event.subject != nil {
			subjects[string(event.subject.kind)+":"+event.subject.key.String()] = true
		}
		totalProps += int64(event.properties.Len())
	}

	stats.UniqueActors = int64(len(actors))
	stats.UniqueSubjects = int64(len(subjects))
	if stats.TotalRecords > 0 {
		stats.AveragePropsChanged = float64(totalProps) / float64(stats.TotalRecords)
	}
	return stats, nil
}

// Close drops every stored event.
func (m *MemoryRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = make(map[int64]*Event)
	m.nextID = 0
	return nil
}

func (m *MemoryRepository) Health(ctx context.Context) error { return nil }

// Len returns the number of stored events.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

func matchesQuery(event *Event, query *EventQuery) bool {
	if len(query.EventTypes) > 0 && !containsString(query.EventTypes, event.eventType) {
		return false
	}
	if query.ActorID != nil && event.actor.UserID != *query.ActorID {
		return false
	}
	if query.SubjectKind != "" && (event.subject == nil || event.subject.kind != query.SubjectKind) {
		return false
	}
	if query.SubjectKey != "" && (event.subject == nil || event.subject.key.String() != query.SubjectKey) {
		return false
	}
	if !query.StartDate.IsZero() && event.occurredAt.Before(query.StartDate) {
		return false
	}
	if !query.EndDate.IsZero() && event.occurredAt.After(query.EndDate) {
		return false
	}
	return true
}

func sortNewestFirst(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].occurredAt.Equal(events[j].occurredAt) {
			return events[i].occurredAt.After(events[j].occurredAt)
		}
		return events[i].id > events[j].id
	})
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
