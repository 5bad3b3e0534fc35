package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	formattools "github.com/madeneat/wplogify/pkg/formatTools"
)

// DefaultContinuationThreshold is the longest gap between heartbeats that
// still extends a session.
const DefaultContinuationThreshold = 300 * time.Second

// Metas carried by heartbeat events.
const (
	MetaSessionStart    = "Session start"
	MetaSessionEnd      = "Session end"
	MetaSessionDuration = "Session duration"
)

// ErrSessionContention is returned when a session could not be advanced
// because other heartbeats kept changing it.
var ErrSessionContention = errors.New("eventlog: session update contention")

// SessionWindow is the span of one actor session and the heartbeat event
// that records it. EventID is 0 until that event is saved.
type SessionWindow struct {
	EventID int64     `json:"event_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// SessionDecision is the outcome of a heartbeat.
type SessionDecision struct {
	Continuing bool
	Start      time.Time
	End        time.Time
	Duration   string
}

// ContinueSession decides whether a heartbeat at now extends prior. It is
// continuing when now is at most threshold after prior ended; otherwise a
// new session starts at now. Times are compared at whole seconds.
func ContinueSession(prior *SessionWindow, now time.Time, threshold time.Duration) SessionDecision {
	if threshold <= 0 {
		threshold = DefaultContinuationThreshold
	}
	now = now.Truncate(time.Second)

	if prior != nil && now.Sub(prior.End.Truncate(time.Second)) <= threshold {
		start := prior.Start.Truncate(time.Second)
		end := now
		if prior.End.After(end) {
			end = prior.End.Truncate(time.Second)
		}
		return SessionDecision{
			Continuing: true,
			Start:      start,
			End:        end,
			Duration:   formattools.Duration(end.Sub(start)),
		}
	}

	return SessionDecision{Start: now, End: now, Duration: formattools.Duration(0)}
}

// SessionStore is the per-actor serialization point for session windows.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (*SessionWindow, error)
	// Advance replaces the actor's window with next(prior) atomically. next
	// may run more than once and must not have side effects.
	Advance(ctx context.Context, userID int64, next func(prior *SessionWindow) SessionWindow) (SessionWindow, error)
}

// RedisSessionStore keeps windows in Redis under "{prefix}{user id}" and
// serializes updates with WATCH/MULTI.
type RedisSessionStore struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxRetries int
}

func NewRedisSessionStore(client *redis.Client, prefix string, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl, maxRetries: 5}
}

func (s *RedisSessionStore) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

func (s *RedisSessionStore) Get(ctx context.Context, userID int64) (*SessionWindow, error) {
	return readWindow(ctx, s.client, s.key(userID))
}

func (s *RedisSessionStore) Advance(ctx context.Context, userID int64, next func(prior *SessionWindow) SessionWindow) (SessionWindow, error) {
	key := s.key(userID)

	var out SessionWindow
	txf := func(tx *redis.Tx) error {
		prior, err := readWindow(ctx, tx, key)
		if err != nil {
			return err
		}

		window := next(prior)
		data, err := json.Marshal(window)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			out = window
		}
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return SessionWindow{}, fmt.Errorf("advancing session %s: %w", key, err)
	}
	return SessionWindow{}, ErrSessionContention
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readWindow(ctx context.Context, c stringGetter, key string) (*SessionWindow, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", key, err)
	}

	var w SessionWindow
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", key, err)
	}
	return &w, nil
}

// MemorySessionStore is a SessionStore for a single process.
type MemorySessionStore struct {
	mu      sync.Mutex
	windows map[int64]SessionWindow
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{windows: make(map[int64]SessionWindow)}
}

func (s *MemorySessionStore) Get(ctx context.Context, userID int64) (*SessionWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[userID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *MemorySessionStore) Advance(ctx context.Context, userID int64, next func(prior *SessionWindow) SessionWindow) (SessionWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prior *SessionWindow
	if w, ok := s.windows[userID]; ok {
		prior = &w
	}
	window := next(prior)
	s.windows[userID] = window
	return window, nil
}

// SessionTrackerOptions wires a SessionTracker.
type SessionTrackerOptions struct {
	Store      SessionStore
	Repository Repository
	Factory    *EventFactory
	Threshold  time.Duration
	Clock      func() time.Time
	Logger     *slog.Logger
}

// SessionTracker turns heartbeats into one "User Active" event per
// session, extending its end and duration while heartbeats keep coming.
type SessionTracker struct {
	store     SessionStore
	repo      Repository
	factory   *EventFactory
	threshold time.Duration
	clock     func() time.Time
	logger    *slog.Logger
}

func NewSessionTracker(opts SessionTrackerOptions) *SessionTracker {
	t := &SessionTracker{
		store:     opts.Store,
		repo:      opts.Repository,
		factory:   opts.Factory,
		threshold: opts.Threshold,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if t.store == nil {
		t.store = NewMemorySessionStore()
	}
	if t.factory == nil {
		t.factory = NewEventFactory([]string{AnyRole}, nil)
	}
	if t.threshold <= 0 {
		t.threshold = DefaultContinuationThreshold
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Heartbeat records that actor is active now. It returns the heartbeat
// event it created or extended, which is nil when another heartbeat is
// still saving the event of the same new session.
func (t *SessionTracker) Heartbeat(ctx context.Context, actor ActorInfo) (*Event, SessionDecision, error) {
	if !t.factory.IsTracked(actor) {
		return nil, SessionDecision{}, ErrUntrackedActor
	}

	seed, err := t.seedWindow(ctx, actor.UserID)
	if err != nil {
		return nil, SessionDecision{}, err
	}

	now := t.clock()
	var decision SessionDecision
	window, err := t.store.Advance(ctx, actor.UserID, func(prior *SessionWindow) SessionWindow {
		if prior == nil {
			prior = seed
		}
		decision = ContinueSession(prior, now, t.threshold)
		w := SessionWindow{Start: decision.Start, End: decision.End}
		if decision.Continuing {
			w.EventID = prior.EventID
		}
		return w
	})
	if err != nil {
		return nil, SessionDecision{}, err
	}

	if decision.Continuing {
		if window.EventID == 0 {
			return nil, decision, nil
		}

		event, err := t.repo.UpdateMetas(ctx, window.EventID, sessionMetas(decision, false))
		if err == nil {
			t.logger.DebugContext(ctx, "session extended",
				slog.Int64("user_id", actor.UserID),
				slog.Int64("event_id", window.EventID),
				slog.String("duration", decision.Duration),
			)
			return event, decision, nil
		}
		if !errors.Is(err, ErrEventNotFound) {
			return nil, decision, err
		}
		t.logger.WarnContext(ctx, "session event missing, recording a new one",
			slog.Int64("user_id", actor.UserID),
			slog.Int64("event_id", window.EventID),
		)
	}

	return t.startSession(ctx, actor, decision, window.EventID)
}

// seedWindow rebuilds the last window from storage when the store has none,
// e.g. after a restart.
func (t *SessionTracker) seedWindow(ctx context.Context, userID int64) (*SessionWindow, error) {
	current, err := t.store.Get(ctx, userID)
	if err != nil || current != nil {
		return nil, err
	}

	last, err := t.repo.LatestByActorAndType(ctx, userID, EventTypeHeartbeat)
	if errors.Is(err, ErrEventNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	start, okStart := metaTime(last, MetaSessionStart)
	end, okEnd := metaTime(last, MetaSessionEnd)
	if !okStart || !okEnd {
		return nil, nil
	}
	id, _ := last.ID()
	return &SessionWindow{EventID: id, Start: start, End: end}, nil
}

// startSession saves a new heartbeat event and points the window at it,
// unless another heartbeat has moved the window on. replaces is the id the
// window held before, 0 for a fresh session.
func (t *SessionTracker) startSession(ctx context.Context, actor ActorInfo, decision SessionDecision, replaces int64) (*Event, SessionDecision, error) {
	subject, err := NewReference(EntityUser, IntKey(actor.UserID), actor.DisplayName)
	if err != nil {
		return nil, decision, err
	}

	event, ok := t.factory.Build(EventInput{
		Type:    EventTypeHeartbeat,
		Subject: subject,
		Metas:   sessionMetas(decision, true),
		Actor:   actor,
	})
	if !ok {
		return nil, decision, ErrUntrackedActor
	}

	saved, err := t.repo.Save(ctx, event)
	if err != nil {
		if replaces == 0 {
			t.abandonWindow(ctx, actor.UserID, decision)
		}
		return nil, decision, err
	}
	id, _ := saved.ID()

	_, err = t.store.Advance(ctx, actor.UserID, func(prior *SessionWindow) SessionWindow {
		if prior == nil {
			return SessionWindow{EventID: id, Start: decision.Start, End: decision.End}
		}
		w := *prior
		if w.EventID == replaces && w.Start.Equal(decision.Start) {
			w.EventID = id
		}
		return w
	})
	if err != nil {
		return saved, decision, err
	}

	t.logger.DebugContext(ctx, "session started",
		slog.Int64("user_id", actor.UserID),
		slog.Int64("event_id", id),
	)
	return saved, decision, nil
}

// abandonWindow clears a new session's window after its event failed to
// save, so the next heartbeat starts over instead of waiting on an id that
// will never arrive. A window another heartbeat has since moved is kept.
func (t *SessionTracker) abandonWindow(ctx context.Context, userID int64, decision SessionDecision) {
	_, err := t.store.Advance(ctx, userID, func(prior *SessionWindow) SessionWindow {
		if prior == nil {
			return SessionWindow{}
		}
		if prior.EventID == 0 && prior.Start.Equal(decision.Start) {
			return SessionWindow{}
		}
		return *prior
	})
	if err != nil {
		t.logger.WarnContext(ctx, "session window not cleared",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func sessionMetas(d SessionDecision, withStart bool) *MetaSet {
	metas := &MetaSet{}
	if withStart {
		metas.Set(MetaSessionStart, DateTime(d.Start))
	}
	metas.Set(MetaSessionEnd, DateTime(d.End))
	metas.Set(MetaSessionDuration, String(d.Duration))
	return metas
}

func metaTime(e *Event, key string) (time.Time, bool) {
	v, ok := e.Meta(key)
	if !ok {
		return time.Time{}, false
	}
	return v.AsDateTime()
}
