package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EntityKind names a family of trackable objects.
type EntityKind string

const (
	EntityPost     EntityKind = "post"
	EntityUser     EntityKind = "user"
	EntityTerm     EntityKind = "term"
	EntityComment  EntityKind = "comment"
	EntityPlugin   EntityKind = "plugin"
	EntityTheme    EntityKind = "theme"
	EntityOption   EntityKind = "option"
	EntityTaxonomy EntityKind = "taxonomy"
)

// Label is the display form of the kind, e.g. "Post" or "Nav Menu Item".
func (k EntityKind) Label() string {
	return Title(string(k))
}

// Title converts snake or lower case words to title case.
func Title(s string) string {
	// A Caser carries state, so one is built per call.
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

// Key identifies an entity within its kind. Posts, users, terms and comments
// use integer keys; plugins, themes and options use string keys.
type Key struct {
	num     int64
	str     string
	numeric bool
}

func IntKey(n int64) Key     { return Key{num: n, numeric: true} }
func StringKey(s string) Key { return Key{str: s} }

func (k Key) IsNumeric() bool { return k.numeric }

// Int returns the integer form of a numeric key.
func (k Key) Int() (int64, bool) { return k.num, k.numeric }

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool { return !k.numeric && k.str == "" }

func (k Key) String() string {
	if k.numeric {
		return strconv.FormatInt(k.num, 10)
	}
	return k.str
}

func (k Key) MarshalJSON() ([]byte, error) {
	if k.numeric {
		return []byte(strconv.FormatInt(k.num, 10)), nil
	}
	return json.Marshal(k.str)
}

func (k *Key) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = StringKey(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("eventlog: key must be a string or integer: %w", err)
	}
	*k = IntKey(n)
	return nil
}

type resolution uint8

const (
	unresolved resolution = iota
	resolvedMissing
	resolvedLive
)

// Entity is whatever a Resolver loads. The core never looks inside it.
type Entity interface{}

// EntityReference is a lazy pointer to a tracked entity. The resolved entity
// is memoized on the reference, so a reference belongs to a single event and
// is not safe for concurrent use.
type EntityReference struct {
	kind EntityKind
	key  Key
	name string

	state  resolution
	entity Entity
}

// NewReference builds a reference. An empty name leaves the cached name
// unset; use Registry.NewReferenceAutoName to derive it from the live entity.
func NewReference(kind EntityKind, key Key, name string) (*EntityReference, error) {
	if kind != "" && key.IsZero() {
		return nil, fmt.Errorf("%w (kind %q)", ErrEmptyKey, kind)
	}
	return &EntityReference{kind: kind, key: key, name: name}, nil
}

// MustReference is NewReference for statically known keys.
func MustReference(kind EntityKind, key Key, name string) *EntityReference {
	ref, err := NewReference(kind, key, name)
	if err != nil {
		panic(err)
	}
	return ref
}

func (r *EntityReference) Kind() EntityKind { return r.kind }
func (r *EntityReference) Key() Key         { return r.key }

// CachedName returns the name stored on the reference, if any.
func (r *EntityReference) CachedName() (string, bool) {
	return r.name, r.name != ""
}

// SameTarget reports whether both references point at the same entity.
func (r *EntityReference) SameTarget(o *EntityReference) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.kind == o.kind && r.key == o.key
}

// FallbackName is "{Kind Label} {key}", e.g. "Post 12".
func (r *EntityReference) FallbackName() string {
	return r.kind.Label() + " " + r.key.String()
}

// String is the best name known without resolving.
func (r *EntityReference) String() string {
	if r.name != "" {
		return r.name
	}
	return r.FallbackName()
}

type referenceJSON struct {
	Kind EntityKind `json:"kind"`
	Key  Key        `json:"key"`
	Name string     `json:"name,omitempty"`
}

func (r *EntityReference) MarshalJSON() ([]byte, error) {
	return json.Marshal(referenceJSON{Kind: r.kind, Key: r.key, Name: r.name})
}

func (r *EntityReference) UnmarshalJSON(data []byte) error {
	var raw referenceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ref, err := NewReference(raw.Kind, raw.Key, raw.Name)
	if err != nil {
		return err
	}
	*r = *ref
	return nil
}

// TagVariant distinguishes live and deleted entities for rendering.
type TagVariant uint8

const (
	TagActive TagVariant = iota + 1
	TagDeleted
)

// RenderableReference tells the presentation layer how to show a reference.
// URL is only set for active entities.
type RenderableReference struct {
	Variant TagVariant `json:"variant"`
	URL     string     `json:"url,omitempty"`
	Label   string     `json:"label"`
}

func ActiveTag(url, label string) RenderableReference {
	return RenderableReference{Variant: TagActive, URL: url, Label: label}
}

func DeletedTag(label string) RenderableReference {
	return RenderableReference{Variant: TagDeleted, Label: label}
}

func (t RenderableReference) IsDeleted() bool { return t.Variant == TagDeleted }

// Resolver is the data-access capability set for one entity kind. Calls are
// synchronous; cancellation is the resolver's business via ctx.
type Resolver interface {
	Exists(ctx context.Context, key Key) (bool, error)
	// Load returns nil when the entity no longer exists.
	Load(ctx context.Context, key Key) (Entity, error)
	Name(ctx context.Context, key Key) (string, bool, error)
	CoreProperties(ctx context.Context, key Key) ([]Property, error)
	DisplayTag(ctx context.Context, key Key, fallbackName string) (RenderableReference, error)
}

// Registry maps entity kinds to their resolvers. It is populated at startup
// and read-only afterwards.
type Registry struct {
	resolvers map[EntityKind]Resolver
}

func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[EntityKind]Resolver)}
}

// Register installs res for kind, replacing any previous resolver.
func (g *Registry) Register(kind EntityKind, res Resolver) *Registry {
	g.resolvers[kind] = res
	return g
}

// Resolver returns the resolver for kind or a *ConfigurationError.
func (g *Registry) Resolver(kind EntityKind) (Resolver, error) {
	res, ok := g.resolvers[kind]
	if !ok {
		return nil, &ConfigurationError{Kind: kind, Err: ErrUnknownEntityKind}
	}
	return res, nil
}

// Kinds lists the registered kinds in sorted order.
func (g *Registry) Kinds() []EntityKind {
	kinds := make([]EntityKind, 0, len(g.resolvers))
	for k := range g.resolvers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// NewReferenceAutoName builds a reference and fills its name from the live
// entity. Unknown kinds fail here because naming needs the resolver.
func (g *Registry) NewReferenceAutoName(ctx context.Context, kind EntityKind, key Key) (*EntityReference, error) {
	ref, err := NewReference(kind, key, "")
	if err != nil {
		return nil, err
	}
	if _, err := g.ResolveName(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// ResolveObject loads the referenced entity once and memoizes the outcome,
// including "no longer exists". Resolver errors are not memoized.
func (g *Registry) ResolveObject(ctx context.Context, ref *EntityReference) (Entity, error) {
	switch ref.state {
	case resolvedLive:
		return ref.entity, nil
	case resolvedMissing:
		return nil, nil
	}

	res, err := g.Resolver(ref.kind)
	if err != nil {
		return nil, err
	}

	exists, err := res.Exists(ctx, ref.key)
	if err != nil {
		return nil, fmt.Errorf("checking %s %s: %w", ref.kind, ref.key, err)
	}
	if !exists {
		ref.state = resolvedMissing
		return nil, nil
	}

	entity, err := res.Load(ctx, ref.key)
	if err != nil {
		return nil, fmt.Errorf("loading %s %s: %w", ref.kind, ref.key, err)
	}
	if entity == nil {
		ref.state = resolvedMissing
		return nil, nil
	}

	ref.state = resolvedLive
	ref.entity = entity
	return entity, nil
}

// ResolveName prefers the live entity's name, then the cached name, then
// FallbackName. A live name is cached on the reference so it survives the
// entity's later deletion once the event is stored.
func (g *Registry) ResolveName(ctx context.Context, ref *EntityReference) (string, error) {
	entity, err := g.ResolveObject(ctx, ref)
	if err != nil {
		return "", err
	}

	if entity != nil {
		res, err := g.Resolver(ref.kind)
		if err != nil {
			return "", err
		}
		name, ok, err := res.Name(ctx, ref.key)
		if err != nil {
			return "", fmt.Errorf("naming %s %s: %w", ref.kind, ref.key, err)
		}
		if ok && name != "" {
			ref.name = name
			return name, nil
		}
	}

	return ref.String(), nil
}

// DisplayTag picks the active or deleted variant for ref.
func (g *Registry) DisplayTag(ctx context.Context, ref *EntityReference) (RenderableReference, error) {
	label, err := g.ResolveName(ctx, ref)
	if err != nil {
		return RenderableReference{}, err
	}

	if ref.state != resolvedLive {
		return DeletedTag(label), nil
	}

	res, err := g.Resolver(ref.kind)
	if err != nil {
		return RenderableReference{}, err
	}
	tag, err := res.DisplayTag(ctx, ref.key, label)
	if err != nil {
		return RenderableReference{}, fmt.Errorf("rendering %s %s: %w", ref.kind, ref.key, err)
	}
	return tag, nil
}

// CoreProperties returns the snapshot properties of a live entity, or nil
// when it is gone.
func (g *Registry) CoreProperties(ctx context.Context, ref *EntityReference) ([]Property, error) {
	entity, err := g.ResolveObject(ctx, ref)
	if err != nil || entity == nil {
		return nil, err
	}
	res, err := g.Resolver(ref.kind)
	if err != nil {
		return nil, err
	}
	return res.CoreProperties(ctx, ref.key)
}
