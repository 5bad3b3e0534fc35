package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePost struct {
	Title  string
	Status string
}

// fakeResolver serves posts from a map and counts lookups.
type fakeResolver struct {
	posts  map[int64]fakePost
	loads  int
	failOn int64
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{posts: map[int64]fakePost{}}
}

func (f *fakeResolver) lookup(key Key) (fakePost, bool) {
	id, _ := key.Int()
	p, ok := f.posts[id]
	return p, ok
}

func (f *fakeResolver) Exists(ctx context.Context, key Key) (bool, error) {
	if id, _ := key.Int(); id == f.failOn && id != 0 {
		return false, errors.New("database unavailable")
	}
	_, ok := f.lookup(key)
	return ok, nil
}

func (f *fakeResolver) Load(ctx context.Context, key Key) (Entity, error) {
	f.loads++
	p, ok := f.lookup(key)
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (f *fakeResolver) Name(ctx context.Context, key Key) (string, bool, error) {
	p, ok := f.lookup(key)
	return p.Title, ok, nil
}

func (f *fakeResolver) CoreProperties(ctx context.Context, key Key) ([]Property, error) {
	p, ok := f.lookup(key)
	if !ok {
		return nil, nil
	}
	return []Property{
		SnapshotProperty("post_title", "wp_posts", String(p.Title)),
		SnapshotProperty("post_status", "wp_posts", String(p.Status)),
	}, nil
}

func (f *fakeResolver) DisplayTag(ctx context.Context, key Key, fallbackName string) (RenderableReference, error) {
	return ActiveTag(fmt.Sprintf("/wp-admin/post.php?post=%s&action=edit", key), fallbackName), nil
}

func TestEntityKind_Label(t *testing.T) {
	assert.Equal(t, "Post", EntityPost.Label())
	assert.Equal(t, "Nav Menu Item", EntityKind("nav_menu_item").Label())
}

func TestNewReference(t *testing.T) {
	ref, err := NewReference(EntityPost, IntKey(12), "")
	require.NoError(t, err)
	assert.Equal(t, "Post 12", ref.String())
	_, cached := ref.CachedName()
	assert.False(t, cached)

	_, err = NewReference(EntityPlugin, StringKey(""), "Akismet")
	assert.ErrorIs(t, err, ErrEmptyKey)

	assert.Panics(t, func() { MustReference(EntityOption, StringKey(""), "") })
}

func TestEntityReference_SameTarget(t *testing.T) {
	a := MustReference(EntityPost, IntKey(1), "A")
	assert.True(t, a.SameTarget(MustReference(EntityPost, IntKey(1), "B")))
	assert.False(t, a.SameTarget(MustReference(EntityPost, StringKey("1"), "")))
	assert.False(t, a.SameTarget(nil))
}

func TestEntityReference_JSON(t *testing.T) {
	data, err := json.Marshal(MustReference(EntityPost, IntKey(7), "Hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"post","key":7,"name":"Hello"}`, string(data))

	var ref EntityReference
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"theme","key":"twentytwenty"}`), &ref))
	assert.Equal(t, EntityTheme, ref.Kind())
	assert.Equal(t, "twentytwenty", ref.Key().String())
	assert.Equal(t, "Theme twentytwenty", ref.String())

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"kind":"theme","key":""}`), &ref), ErrEmptyKey)
}

func TestRegistry_UnknownKind(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.ResolveObject(context.Background(), MustReference(EntityComment, IntKey(3), ""))

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, EntityComment, cfgErr.Kind)
	assert.ErrorIs(t, err, ErrUnknownEntityKind)
}

func TestRegistry_ResolveObjectMemoizes(t *testing.T) {
	res := newFakeResolver()
	res.posts[1] = fakePost{Title: "Hello", Status: "publish"}
	reg := NewRegistry().Register(EntityPost, res)
	ctx := context.Background()

	live := MustReference(EntityPost, IntKey(1), "")
	for i := 0; i < 3; i++ {
		entity, err := reg.ResolveObject(ctx, live)
		require.NoError(t, err)
		assert.Equal(t, fakePost{Title: "Hello", Status: "publish"}, entity)
	}
	assert.Equal(t, 1, res.loads)

	missing := MustReference(EntityPost, IntKey(2), "")
	entity, err := reg.ResolveObject(ctx, missing)
	require.NoError(t, err)
	assert.Nil(t, entity)

	res.posts[2] = fakePost{Title: "Late"}
	entity, err = reg.ResolveObject(ctx, missing)
	require.NoError(t, err)
	assert.Nil(t, entity, "missing outcome is remembered")
}

func TestRegistry_ResolverErrorsAreNotMemoized(t *testing.T) {
	res := newFakeResolver()
	res.posts[4] = fakePost{Title: "Flaky"}
	res.failOn = 4
	reg := NewRegistry().Register(EntityPost, res)
	ref := MustReference(EntityPost, IntKey(4), "")

	_, err := reg.ResolveObject(context.Background(), ref)
	require.Error(t, err)

	res.failOn = 0
	entity, err := reg.ResolveObject(context.Background(), ref)
	require.NoError(t, err)
	assert.NotNil(t, entity)
}

func TestRegistry_ResolveName(t *testing.T) {
	res := newFakeResolver()
	res.posts[1] = fakePost{Title: "Live title"}
	reg := NewRegistry().Register(EntityPost, res)
	ctx := context.Background()

	ref := MustReference(EntityPost, IntKey(1), "Old title")
	name, err := reg.ResolveName(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Live title", name)
	cached, _ := ref.CachedName()
	assert.Equal(t, "Live title", cached)

	gone := MustReference(EntityPost, IntKey(9), "Deleted post")
	name, err = reg.ResolveName(ctx, gone)
	require.NoError(t, err)
	assert.Equal(t, "Deleted post", name)

	unnamed := MustReference(EntityPost, IntKey(10), "")
	name, err = reg.ResolveName(ctx, unnamed)
	require.NoError(t, err)
	assert.Equal(t, "Post 10", name)
}

func TestRegistry_NewReferenceAutoName(t *testing.T) {
	res := newFakeResolver()
	res.posts[3] = fakePost{Title: "About"}
	reg := NewRegistry().Register(EntityPost, res)

	ref, err := reg.NewReferenceAutoName(context.Background(), EntityPost, IntKey(3))
	require.NoError(t, err)
	name, ok := ref.CachedName()
	assert.True(t, ok)
	assert.Equal(t, "About", name)

	_, err = reg.NewReferenceAutoName(context.Background(), EntityUser, IntKey(3))
	assert.ErrorIs(t, err, ErrUnknownEntityKind)
}

func TestRegistry_DisplayTag(t *testing.T) {
	res := newFakeResolver()
	res.posts[1] = fakePost{Title: "Hello"}
	reg := NewRegistry().Register(EntityPost, res)
	ctx := context.Background()

	tag, err := reg.DisplayTag(ctx, MustReference(EntityPost, IntKey(1), ""))
	require.NoError(t, err)
	assert.Equal(t, TagActive, tag.Variant)
	assert.Equal(t, "Hello", tag.Label)
	assert.Contains(t, tag.URL, "post=1")

	tag, err = reg.DisplayTag(ctx, MustReference(EntityPost, IntKey(2), "Goodbye"))
	require.NoError(t, err)
	assert.True(t, tag.IsDeleted())
	assert.Equal(t, "Goodbye", tag.Label)
	assert.Empty(t, tag.URL)

	tag, err = reg.DisplayTag(ctx, MustReference(EntityPost, IntKey(3), ""))
	require.NoError(t, err)
	assert.True(t, tag.IsDeleted())
	assert.Equal(t, "Post 3", tag.Label)
}

func TestRegistry_CoreProperties(t *testing.T) {
	res := newFakeResolver()
	res.posts[1] = fakePost{Title: "Hello", Status: "draft"}
	reg := NewRegistry().Register(EntityPost, res)

	props, err := reg.CoreProperties(context.Background(), MustReference(EntityPost, IntKey(1), ""))
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.True(t, props[1].IsSnapshot())

	props, err = reg.CoreProperties(context.Background(), MustReference(EntityPost, IntKey(2), ""))
	require.NoError(t, err)
	assert.Nil(t, props)
}

func TestRegistry_Kinds(t *testing.T) {
	reg := NewRegistry().
		Register(EntityUser, newFakeResolver()).
		Register(EntityComment, newFakeResolver()).
		Register(EntityPost, newFakeResolver())
	assert.Equal(t, []EntityKind{EntityComment, EntityPost, EntityUser}, reg.Kinds())
}
