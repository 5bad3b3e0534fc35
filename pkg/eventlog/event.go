package eventlog

import (
	"encoding/json"
	"time"
)

// Event types that are logged even when nothing changed.
const (
	EventTypeLogin       = "User Login"
	EventTypeLogout      = "User Logout"
	EventTypeHeartbeat   = "User Active"
	EventTypeFailedLogin = "Failed Login"
)

// AlwaysLog lists the event types a scope finalizes without any changes.
var AlwaysLog = []string{EventTypeLogin, EventTypeLogout, EventTypeHeartbeat, EventTypeFailedLogin}

func IsAlwaysLogged(eventType string) bool {
	for _, t := range AlwaysLog {
		if t == eventType {
			return true
		}
	}
	return false
}

// AnyRole in a tracked role list tracks every non-empty role.
const AnyRole = "*"

// ActorInfo describes who caused an event. UserID 0 is anonymous.
type ActorInfo struct {
	UserID      int64  `json:"user_id" validate:"gte=0"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	IP          string `json:"ip,omitempty" validate:"omitempty,ip"`
	Location    string `json:"location,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}

func (a ActorInfo) IsAnonymous() bool { return a.UserID == 0 }

// MembershipChange lists entities added to and removed from one set-valued
// dimension of the subject, such as a post's categories.
type MembershipChange struct {
	Dimension string             `json:"dimension" validate:"required"`
	Added     []*EntityReference `json:"added,omitempty"`
	Removed   []*EntityReference `json:"removed,omitempty"`
}

// Verb is Added, Removed or Updated.
func (m MembershipChange) Verb() string {
	return MembershipVerb(len(m.Added), len(m.Removed))
}

func (m MembershipChange) IsEmpty() bool {
	return len(m.Added) == 0 && len(m.Removed) == 0
}

// Event is a finalized log record. It has no setters; the id is assigned
// by a Repository.
type Event struct {
	id             int64
	occurredAt     time.Time
	actor          ActorInfo
	eventType      string
	subject        *EntityReference
	subjectSubtype string
	properties     *PropertyChangeSet
	metas          *MetaSet
	memberships    []MembershipChange
}

// ID returns the persistence id, or false for an unsaved event.
func (e *Event) ID() (int64, bool) { return e.id, e.id != 0 }

func (e *Event) OccurredAt() time.Time     { return e.occurredAt }
func (e *Event) Actor() ActorInfo          { return e.actor }
func (e *Event) Type() string              { return e.eventType }
func (e *Event) Subject() *EntityReference { return e.subject }
func (e *Event) SubjectSubtype() string    { return e.subjectSubtype }

// Properties returns a copy of the change set, or nil.
func (e *Event) Properties() *PropertyChangeSet { return e.properties.Clone() }

// Metas returns a copy of the metas, or nil.
func (e *Event) Metas() *MetaSet { return e.metas.Clone() }

func (e *Event) Memberships() []MembershipChange {
	return append([]MembershipChange(nil), e.memberships...)
}

func (e *Event) HasProperty(key string) bool { return e.properties.Has(key) }
func (e *Event) HasMeta(key string) bool     { return e.metas.Has(key) }

func (e *Event) Property(key string) (Property, bool) { return e.properties.Get(key) }
func (e *Event) Meta(key string) (Value, bool)        { return e.metas.Get(key) }

// SameAs compares persisted identity. Unsaved events are never the same as
// anything, themselves included.
func (e *Event) SameAs(o *Event) bool {
	if e == nil || o == nil || e.id == 0 || o.id == 0 {
		return false
	}
	return e.id == o.id
}

// withID returns a saved copy of e.
func (e *Event) withID(id int64) *Event {
	out := *e
	out.id = id
	return &out
}

// withMetas returns a copy of e whose metas are updated from changes.
func (e *Event) withMetas(changes *MetaSet) *Event {
	out := *e
	merged := e.metas.Clone()
	if merged == nil {
		merged = &MetaSet{}
	}
	for _, meta := range changes.All() {
		merged.Set(meta.Key, meta.Value)
	}
	out.metas = merged
	return &out
}

// eventRecord is the serialized and validated shape of an Event.
type eventRecord struct {
	ID             int64              `json:"id,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at" validate:"required"`
	Actor          ActorInfo          `json:"actor"`
	Type           string             `json:"event_type" validate:"required,max=255"`
	Subject        *EntityReference   `json:"subject,omitempty"`
	SubjectSubtype string             `json:"subject_subtype,omitempty"`
	Properties     *PropertyChangeSet `json:"properties,omitempty"`
	Metas          *MetaSet           `json:"metas,omitempty"`
	Memberships    []MembershipChange `json:"memberships,omitempty" validate:"dive"`
}

func (e *Event) record() eventRecord {
	return eventRecord{
		ID:             e.id,
		OccurredAt:     e.occurredAt,
		Actor:          e.actor,
		Type:           e.eventType,
		Subject:        e.subject,
		SubjectSubtype: e.subjectSubtype,
		Properties:     e.properties,
		Metas:          e.metas,
		Memberships:    e.memberships,
	}
}

func (r eventRecord) event() *Event {
	return &Event{
		id:             r.ID,
		occurredAt:     r.OccurredAt,
		actor:          r.Actor,
		eventType:      r.Type,
		subject:        r.Subject,
		subjectSubtype: r.SubjectSubtype,
		properties:     r.Properties,
		metas:          r.Metas,
		memberships:    r.Memberships,
	}
}

func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.record())
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var r eventRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*e = *r.event()
	return nil
}

// EventInput carries everything needed to build an Event.
type EventInput struct {
	Type           string
	Subject        *EntityReference
	SubjectSubtype string
	Properties     *PropertyChangeSet
	Metas          *MetaSet
	Memberships    []MembershipChange
	Actor          ActorInfo
}

// EventFactory is the only way to build a new Event. It refuses actors
// whose role is not tracked, except for failed logins where no
// authenticated actor exists.
type EventFactory struct {
	TrackedRoles []string
	Clock        func() time.Time
}

func NewEventFactory(trackedRoles []string, clock func() time.Time) *EventFactory {
	if clock == nil {
		clock = time.Now
	}
	return &EventFactory{TrackedRoles: trackedRoles, Clock: clock}
}

// IsTracked lets callers skip work for actors that will never be logged.
func (f *EventFactory) IsTracked(actor ActorInfo) bool {
	if actor.Role == "" {
		return false
	}
	for _, role := range f.TrackedRoles {
		if role == AnyRole || role == actor.Role {
			return true
		}
	}
	return false
}

// Create builds an event for a single subject.
func (f *EventFactory) Create(eventType string, subject *EntityReference, metas *MetaSet, props *PropertyChangeSet, actor ActorInfo) (*Event, bool) {
	return f.Build(EventInput{
		Type:       eventType,
		Subject:    subject,
		Metas:      metas,
		Properties: props,
		Actor:      actor,
	})
}

// Build returns false when the actor is not tracked.
func (f *EventFactory) Build(in EventInput) (*Event, bool) {
	if in.Type != EventTypeFailedLogin && !f.IsTracked(in.Actor) {
		return nil, false
	}

	clock := f.Clock
	if clock == nil {
		clock = time.Now
	}

	e := &Event{
		occurredAt:     clock(),
		actor:          in.Actor,
		eventType:      in.Type,
		subject:        in.Subject,
		subjectSubtype: in.SubjectSubtype,
		properties:     in.Properties.Clone(),
		metas:          in.Metas.Clone(),
	}
	for _, m := range in.Memberships {
		if !m.IsEmpty() {
			e.memberships = append(e.memberships, m)
		}
	}
	if e.properties != nil && e.properties.Len() == 0 {
		e.properties = nil
	}
	if e.metas != nil && e.metas.Len() == 0 {
		e.metas = nil
	}
	return e, true
}
