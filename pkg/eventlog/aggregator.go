package eventlog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	patchtools "github.com/madeneat/wplogify/pkg/patchTools"
)

// AggregatorOptions wires an Aggregator. Nil fields get working defaults,
// except Repository which Commit needs.
type AggregatorOptions struct {
	Normalizer *Normalizer
	Differ     *DiffCalculator
	Sanitizer  *Sanitizer
	Factory    *EventFactory
	EventTypes EventTypeResolver
	Repository Repository
	Logger     *slog.Logger
}

// Aggregator holds the process-wide, read-only collaborators and opens one
// Scope per logical operation.
type Aggregator struct {
	normalizer *Normalizer
	differ     *DiffCalculator
	sanitizer  *Sanitizer
	factory    *EventFactory
	types      EventTypeResolver
	repo       Repository
	logger     *slog.Logger
}

func NewAggregator(opts AggregatorOptions) *Aggregator {
	a := &Aggregator{
		normalizer: opts.Normalizer,
		differ:     opts.Differ,
		sanitizer:  opts.Sanitizer,
		factory:    opts.Factory,
		types:      opts.EventTypes,
		repo:       opts.Repository,
		logger:     opts.Logger,
	}
	if a.normalizer == nil {
		a.normalizer = NewNormalizer(NormalizerConfig{})
	}
	if a.differ == nil {
		a.differ = NewDiffCalculator(a.normalizer, nil, nil)
	}
	if a.sanitizer == nil {
		a.sanitizer = NewSanitizer(nil, RedactionMask, nil)
	}
	if a.factory == nil {
		a.factory = NewEventFactory([]string{AnyRole}, nil)
	}
	if a.types == nil {
		a.types = DefaultEventTypes
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

func (a *Aggregator) Normalizer() *Normalizer { return a.normalizer }
func (a *Aggregator) Factory() *EventFactory  { return a.factory }

// Open starts a scope for actor.
func (a *Aggregator) Open(actor ActorInfo) *Scope {
	return &Scope{
		id:    uuid.NewString(),
		agg:   a,
		actor: actor,
		props: &PropertyChangeSet{},
		metas: &MetaSet{},
	}
}

// Commit finalizes scope and saves the event. It returns nil, nil when the
// scope produced no event. Committing the same scope again returns the
// event saved the first time. Repository errors come back unchanged.
func (a *Aggregator) Commit(ctx context.Context, scope *Scope) (*Event, error) {
	if scope.saved != nil {
		return scope.saved, nil
	}

	event := scope.Finalize(nil)
	if event == nil {
		return nil, nil
	}
	if a.repo == nil {
		return nil, persistErr("save", fmt.Errorf("no repository configured"))
	}

	saved, err := a.repo.Save(ctx, event)
	if err != nil {
		return nil, err
	}
	scope.saved = saved

	id, _ := saved.ID()
	a.logger.InfoContext(ctx, "event logged",
		slog.String("scope_id", scope.id),
		slog.Int64("event_id", id),
		slog.String("event_type", saved.Type()),
		slog.Int64("user_id", saved.Actor().UserID),
		slog.Int("properties", saved.properties.Len()),
	)
	return saved, nil
}

// ScopeState is Open until Finalize runs, then Finalized for good.
type ScopeState uint8

const (
	ScopeOpen ScopeState = iota
	ScopeFinalized
)

func (s ScopeState) String() string {
	if s == ScopeFinalized {
		return "finalized"
	}
	return "open"
}

// Scope accumulates contributions from the observation points of one
// logical operation. It belongs to that operation alone and is not safe for
// concurrent use. A scope whose operation fails is dropped without calling
// Finalize.
type Scope struct {
	id        string
	agg       *Aggregator
	actor     ActorInfo
	subject   *EntityReference
	subtype   string
	op        Operation
	eventType string

	props       *PropertyChangeSet
	metas       *MetaSet
	memberships orderedMap[MembershipChange]

	state  ScopeState
	result *Event
	saved  *Event
}

func (s *Scope) ID() string        { return s.id }
func (s *Scope) Actor() ActorInfo  { return s.actor }
func (s *Scope) State() ScopeState { return s.state }

// IsTracked reports whether finalizing can produce an event for the actor.
func (s *Scope) IsTracked() bool {
	return s.agg.factory.IsTracked(s.actor) || s.eventType == EventTypeFailedLogin
}

func (s *Scope) open() error {
	if s.state == ScopeFinalized {
		return ErrScopeFinalized
	}
	return nil
}

// SetSubject sets the entity the event is about.
func (s *Scope) SetSubject(ref *EntityReference, subtype string) error {
	if err := s.open(); err != nil {
		return err
	}
	s.subject = ref
	s.subtype = subtype
	return nil
}

func (s *Scope) SetOperation(op Operation) error {
	if err := s.open(); err != nil {
		return err
	}
	s.op = op
	return nil
}

// SetEventType overrides the resolver's choice.
func (s *Scope) SetEventType(eventType string) error {
	if err := s.open(); err != nil {
		return err
	}
	s.eventType = eventType
	return nil
}

// ContributeProperty records a change of key from oldRaw to newRaw. Equal
// values after normalization are ignored. A key contributed earlier keeps
// its first old value and takes the latest new value.
func (s *Scope) ContributeProperty(key, source string, oldRaw, newRaw any) error {
	if err := s.open(); err != nil {
		return err
	}

	oldValue := s.agg.normalizer.Normalize(oldRaw, key, source)
	newValue := s.agg.normalizer.Normalize(newRaw, key, source)
	if Equals(oldValue, newValue) {
		return nil
	}

	s.props.Merge(NewPropertyChangeSet(ChangeProperty(key, source, oldValue, newValue)))
	return nil
}

// ContributeSnapshot records a value that is reported without a change,
// unless the key already carries one.
func (s *Scope) ContributeSnapshot(key, source string, raw any) error {
	if err := s.open(); err != nil {
		return err
	}
	if s.props.Has(key) {
		return nil
	}
	s.props.Put(SnapshotProperty(key, source, s.agg.normalizer.Normalize(raw, key, source)))
	return nil
}

// ContributeDiff records every difference between two snapshots of the
// subject read from source.
func (s *Scope) ContributeDiff(source string, before, after map[string]any) error {
	if err := s.open(); err != nil {
		return err
	}
	s.props.Merge(NewPropertyChangeSet(s.agg.differ.CalculateDiff(source, before, after)...))
	return nil
}

// ContributePatch records the differences a partial update makes to before.
func (s *Scope) ContributePatch(source string, before map[string]any, patch []patchtools.Data) error {
	return s.ContributeDiff(source, before, patchtools.Apply(before, patch))
}

// ContributeMeta upserts free-form metadata.
func (s *Scope) ContributeMeta(key string, raw any) error {
	if err := s.open(); err != nil {
		return err
	}
	s.metas.Set(key, s.agg.normalizer.Normalize(raw, key, ""))
	return nil
}

// ContributeMembershipChange appends to the added and removed lists of
// dimension. Duplicates are kept here and dropped on save; nil references
// are skipped.
func (s *Scope) ContributeMembershipChange(dimension string, added, removed []*EntityReference) error {
	if err := s.open(); err != nil {
		return err
	}
	if !s.memberships.has(dimension) {
		s.memberships.put(dimension, MembershipChange{Dimension: dimension})
	}
	s.memberships.update(dimension, func(m *MembershipChange) {
		m.Added = appendReferences(m.Added, added)
		m.Removed = appendReferences(m.Removed, removed)
	})
	return nil
}

// SetPropertyNewValue replaces the new value of a contributed key.
func (s *Scope) SetPropertyNewValue(key string, raw any) error {
	if err := s.open(); err != nil {
		return err
	}
	p, ok := s.props.Get(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingPropertyKey, key)
	}
	return s.props.SetNewValue(key, s.agg.normalizer.Normalize(raw, key, p.Source))
}

// SetPropertyOldValue replaces the old value of a contributed key.
func (s *Scope) SetPropertyOldValue(key string, raw any) error {
	if err := s.open(); err != nil {
		return err
	}
	p, ok := s.props.Get(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingPropertyKey, key)
	}
	return s.props.SetOldValue(key, s.agg.normalizer.Normalize(raw, key, p.Source))
}

// Finalize builds the event once. Later calls return the first result,
// including nil. A nil resolver uses the aggregator's. Scopes with no
// changes yield nil unless their type is in AlwaysLog.
func (s *Scope) Finalize(resolver EventTypeResolver) *Event {
	if s.state == ScopeFinalized {
		return s.result
	}
	s.state = ScopeFinalized

	memberships := make([]MembershipChange, 0, s.memberships.len())
	for _, m := range s.memberships.values() {
		if !m.IsEmpty() {
			memberships = append(memberships, m)
		}
	}

	if s.props.Len() == 0 && len(memberships) == 0 && !IsAlwaysLogged(s.eventType) {
		s.agg.logger.Debug("scope finalized without changes", slog.String("scope_id", s.id))
		return nil
	}

	eventType := s.eventType
	if eventType == "" {
		if resolver == nil {
			resolver = s.agg.types
		}
		tc := TypeContext{
			Operation:   s.op,
			HasScalars:  s.props.Len() > 0,
			Memberships: memberships,
		}
		if s.subject != nil {
			tc.Kind = s.subject.kind
		}
		eventType = resolver.EventType(tc)
	}

	event, ok := s.agg.factory.Build(EventInput{
		Type:           eventType,
		Subject:        s.subject,
		SubjectSubtype: s.subtype,
		Properties:     s.agg.sanitizer.SanitizeChangeSet(s.props),
		Metas:          s.metas,
		Memberships:    memberships,
		Actor:          s.actor,
	})
	if !ok {
		s.agg.logger.Debug("actor not tracked, event dropped",
			slog.String("scope_id", s.id),
			slog.String("role", s.actor.Role),
		)
		return nil
	}

	s.result = event
	return event
}

type scopeKey struct{}

// WithScope attaches scope to ctx so observation points down the call chain
// can contribute to it.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the scope attached by WithScope.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok && scope != nil
}
