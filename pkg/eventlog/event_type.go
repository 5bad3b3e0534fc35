package eventlog

// Operation is the coarse lifecycle step a scope observed.
type Operation string

const (
	OperationNone   Operation = ""
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// TypeContext is what an EventTypeResolver sees of a scope at finalization.
type TypeContext struct {
	Kind        EntityKind
	Operation   Operation
	HasScalars  bool
	Memberships []MembershipChange
}

// EventTypeResolver names the event a finalized scope describes.
type EventTypeResolver interface {
	EventType(tc TypeContext) string
}

// EventTypeFunc adapts a function to EventTypeResolver.
type EventTypeFunc func(tc TypeContext) string

func (f EventTypeFunc) EventType(tc TypeContext) string { return f(tc) }

// DefaultEventTypes produces "{Kind} Created", "{Kind} Deleted",
// "{Dimension} Added|Removed|Updated" for a single membership change with no
// scalar changes, and "{Kind} Updated" for everything else.
var DefaultEventTypes EventTypeResolver = EventTypeFunc(defaultEventType)

func defaultEventType(tc TypeContext) string {
	switch tc.Operation {
	case OperationCreate:
		return typeName(tc.Kind, "Created")
	case OperationDelete:
		return typeName(tc.Kind, "Deleted")
	}

	if !tc.HasScalars && len(tc.Memberships) == 1 {
		m := tc.Memberships[0]
		return Title(m.Dimension) + " " + m.Verb()
	}

	return typeName(tc.Kind, "Updated")
}

// typeName drops the subject for scopes that have none.
func typeName(kind EntityKind, verb string) string {
	if kind == "" {
		return verb
	}
	return kind.Label() + " " + verb
}

// MembershipVerb breaks ties between additions and removals: both present is
// Updated, otherwise whichever side is non-empty.
func MembershipVerb(added, removed int) string {
	switch {
	case added > 0 && removed > 0:
		return "Updated"
	case added > 0:
		return "Added"
	case removed > 0:
		return "Removed"
	}
	return "Updated"
}
