package eventlog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

var admin = ActorInfo{UserID: 1, DisplayName: "admin", Role: "administrator", IP: "203.0.113.7"}

func TestEventFactory_IsTracked(t *testing.T) {
	f := NewEventFactory([]string{"administrator", "editor"}, fixedClock)

	assert.True(t, f.IsTracked(admin))
	assert.True(t, f.IsTracked(ActorInfo{UserID: 2, Role: "editor"}))
	assert.False(t, f.IsTracked(ActorInfo{UserID: 3, Role: "subscriber"}))
	assert.False(t, f.IsTracked(ActorInfo{}))

	wildcard := NewEventFactory([]string{AnyRole}, fixedClock)
	assert.True(t, wildcard.IsTracked(ActorInfo{UserID: 3, Role: "subscriber"}))
	assert.False(t, wildcard.IsTracked(ActorInfo{UserID: 3}))
}

func TestEventFactory_Create(t *testing.T) {
	f := NewEventFactory([]string{"administrator"}, fixedClock)
	subject := MustReference(EntityPost, IntKey(12), "Hello")
	props := NewPropertyChangeSet(ChangeProperty("post_status", "wp_posts", String("draft"), String("publish")))

	event, ok := f.Create("Post Updated", subject, nil, props, admin)
	require.True(t, ok)

	_, saved := event.ID()
	assert.False(t, saved)
	assert.Equal(t, fixedNow, event.OccurredAt())
	assert.Equal(t, "Post Updated", event.Type())
	assert.Same(t, subject, event.Subject())
	assert.Equal(t, admin, event.Actor())
	assert.True(t, event.HasProperty("post_status"))
	assert.False(t, event.HasMeta("anything"))
	assert.Nil(t, event.Metas())

	props.Put(ChangeProperty("post_title", "", String("a"), String("b")))
	assert.False(t, event.HasProperty("post_title"), "event keeps its own copy")

	event.Properties().Put(SnapshotProperty("x", "", Int(1)))
	assert.False(t, event.HasProperty("x"))
}

func TestEventFactory_RefusesUntracked(t *testing.T) {
	f := NewEventFactory([]string{"administrator"}, fixedClock)
	subscriber := ActorInfo{UserID: 9, Role: "subscriber"}

	_, ok := f.Create("Post Updated", nil, nil, nil, subscriber)
	assert.False(t, ok)

	event, ok := f.Create(EventTypeFailedLogin, nil, NewMetaSet(Eventmeta{Key: "login", Value: String("bob")}), nil, ActorInfo{})
	require.True(t, ok)
	assert.True(t, event.Actor().IsAnonymous())
	login, _ := event.Meta("login")
	assert.Equal(t, "bob", login.String())
}

func TestEventFactory_BuildDropsEmptyParts(t *testing.T) {
	f := NewEventFactory([]string{AnyRole}, fixedClock)
	event, ok := f.Build(EventInput{
		Type:       "Post Updated",
		Actor:      admin,
		Properties: NewPropertyChangeSet(),
		Metas:      NewMetaSet(),
		Memberships: []MembershipChange{
			{Dimension: "tags"},
			{Dimension: "categories", Added: []*EntityReference{MustReference(EntityTerm, IntKey(3), "News")}},
		},
	})
	require.True(t, ok)
	assert.Nil(t, event.Properties())
	assert.Nil(t, event.Metas())
	require.Len(t, event.Memberships(), 1)
	assert.Equal(t, "categories", event.Memberships()[0].Dimension)
	assert.Equal(t, "Added", event.Memberships()[0].Verb())
}

func TestEvent_SameAs(t *testing.T) {
	f := NewEventFactory([]string{AnyRole}, fixedClock)
	a, _ := f.Create(EventTypeLogin, nil, nil, nil, admin)
	b, _ := f.Create(EventTypeLogin, nil, nil, nil, admin)

	assert.False(t, a.SameAs(a), "unsaved events have no identity")
	assert.True(t, a.withID(4).SameAs(b.withID(4)))
	assert.False(t, a.withID(4).SameAs(a.withID(5)))
}

func TestEvent_JSON(t *testing.T) {
	f := NewEventFactory([]string{AnyRole}, fixedClock)
	event, ok := f.Build(EventInput{
		Type:           "Post Updated",
		Subject:        MustReference(EntityPost, IntKey(12), "Hello"),
		SubjectSubtype: "page",
		Properties:     NewPropertyChangeSet(ChangeProperty("post_status", "wp_posts", String("draft"), String("publish"))),
		Metas:          NewMetaSet(Eventmeta{Key: "revision", Value: Int(3)}),
		Memberships: []MembershipChange{{
			Dimension: "categories",
			Removed:   []*EntityReference{MustReference(EntityTerm, IntKey(1), "Uncategorized")},
		}},
		Actor: admin,
	})
	require.True(t, ok)
	event = event.withID(77)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))

	id, _ := decoded.ID()
	assert.Equal(t, int64(77), id)
	assert.Equal(t, "page", decoded.SubjectSubtype())
	assert.True(t, decoded.Subject().SameTarget(event.Subject()))
	assert.True(t, fixedNow.Equal(decoded.OccurredAt()))
	status, ok := decoded.Property("post_status")
	require.True(t, ok)
	assert.Equal(t, "publish", status.NewValue.String())
	rev, _ := decoded.Meta("revision")
	assert.Equal(t, int64(3), rev.Raw())
	require.Len(t, decoded.Memberships(), 1)
	assert.Equal(t, "Removed", decoded.Memberships()[0].Verb())
}

func TestEvent_WithMetas(t *testing.T) {
	f := NewEventFactory([]string{AnyRole}, fixedClock)
	event, _ := f.Create(EventTypeHeartbeat, nil, NewMetaSet(Eventmeta{Key: "a", Value: Int(1)}, Eventmeta{Key: "b", Value: Int(2)}), nil, admin)

	updated := event.withMetas(NewMetaSet(Eventmeta{Key: "b", Value: Int(20)}, Eventmeta{Key: "c", Value: Int(3)}))
	assert.Equal(t, []string{"a", "b", "c"}, updated.Metas().Keys())
	b, _ := updated.Meta("b")
	assert.Equal(t, int64(20), b.Raw())

	orig, _ := event.Meta("b")
	assert.Equal(t, int64(2), orig.Raw())
}

func TestValidateEvent(t *testing.T) {
	f := NewEventFactory([]string{AnyRole}, fixedClock)
	valid, _ := f.Create(EventTypeLogin, nil, nil, nil, admin)
	assert.NoError(t, validateEvent(valid))

	noType, _ := f.Create("", nil, nil, nil, admin)
	assert.Error(t, validateEvent(noType))

	badIP := admin
	badIP.IP = "not-an-ip"
	withBadIP, _ := f.Create(EventTypeLogin, nil, nil, nil, badIP)
	assert.Error(t, validateEvent(withBadIP))

	zeroTime, _ := NewEventFactory([]string{AnyRole}, func() time.Time { return time.Time{} }).Create(EventTypeLogin, nil, nil, nil, admin)
	assert.Error(t, validateEvent(zeroTime))

	noDimension, _ := f.Build(EventInput{
		Type:        "Tags Added",
		Actor:       admin,
		Memberships: []MembershipChange{{Added: []*EntityReference{MustReference(EntityTerm, IntKey(1), "")}}},
	})
	assert.Error(t, validateEvent(noDimension))
}

func TestMembershipVerb(t *testing.T) {
	assert.Equal(t, "Added", MembershipVerb(2, 0))
	assert.Equal(t, "Removed", MembershipVerb(0, 1))
	assert.Equal(t, "Updated", MembershipVerb(1, 1))
	assert.Equal(t, "Updated", MembershipVerb(0, 0))
}
