package contract

import "fmt"

// DefaultType is assumed when a document or payload carries no discriminator.
const DefaultType = "common"

// Type describes one pluggable contract variant: its status set, the
// status-dependent field allow-lists, and which operations its state machine
// permits. Variants are configuration data, not subclasses.
type Type struct {
	Name     string
	Statuses []string

	CreateFields FieldSet
	ViewFields   FieldSet
	AdminFields  FieldSet
	// EditFields maps a contract status to the owner edit allow-list.
	// Statuses absent from the map are non-editable.
	EditFields map[string]FieldSet

	// EditableStatuses gates document and change operations.
	EditableStatuses []string
	// CredentialsStatuses gates owner-token regeneration.
	CredentialsStatuses []string
	// Milestones enables the milestone sub-entity for this variant.
	Milestones bool
}

// HasStatus reports whether s is a declared status of the type.
func (t *Type) HasStatus(s string) bool {
	for _, v := range t.Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Editable reports whether document/change operations are allowed in s.
func (t *Type) Editable(s string) bool {
	for _, v := range t.EditableStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// CredentialsAllowed reports whether owner-token regeneration is allowed in s.
func (t *Type) CredentialsAllowed(s string) bool {
	for _, v := range t.CredentialsStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Registry maps the contractType discriminator to its Type descriptor. It is
// populated once at startup and read-only afterwards, so lookups take no
// lock.
type Registry struct {
	types map[string]*Type
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: map[string]*Type{}}
}

// Register adds a contract type. Registering a duplicate name panics: type
// registration is startup wiring and a clash is a programming error.
func (r *Registry) Register(t *Type) {
	if _, dup := r.types[t.Name]; dup {
		panic(fmt.Sprintf("contract type %q registered twice", t.Name))
	}
	r.types[t.Name] = t
}

// Get resolves a discriminator value. The empty string selects the default
// type; an unregistered value is an UnsupportedTypeError.
func (r *Registry) Get(name string) (*Type, error) {
	if name == "" {
		name = DefaultType
	}
	t, ok := r.types[name]
	if !ok {
		return nil, &UnsupportedTypeError{Type: name}
	}
	return t, nil
}

func commonType() *Type {
	return &Type{
		Name:         DefaultType,
		Statuses:     []string{StatusDraft, StatusActive, StatusTerminated},
		CreateFields: contractCreateFields,
		ViewFields:   contractViewFields,
		AdminFields:  contractAdminFields,
		EditFields: map[string]FieldSet{
			StatusDraft:  contractEditDraftFields,
			StatusActive: contractEditActiveFields,
			// terminated: absent, no field may be mutated
		},
		EditableStatuses:    []string{StatusActive},
		CredentialsStatuses: []string{StatusDraft},
	}
}

func ceasefireType() *Type {
	t := commonType()
	t.Name = "ceasefire"
	t.Milestones = true
	t.CreateFields = t.CreateFields.With("milestones")
	return t
}

// BuiltInRegistry returns a registry with the built-in contract types:
// "common" (no milestones) and "ceasefire" (milestones enabled).
func BuiltInRegistry() *Registry {
	r := NewRegistry()
	r.Register(commonType())
	r.Register(ceasefireType())
	return r
}
