package types

import (
	"sort"
	"strings"
)

// Identifier describes a component (target, transformer, scorer or
// orchestrator) as recorded alongside pieces and scores. It always carries
// "__type__" and usually "id"; components may add more keys.
type Identifier map[string]string

const (
	identifierTypeKey = "__type__"
	identifierIDKey   = "id"
)

// NewIdentifier creates an Identifier for a component of the given type.
func NewIdentifier(componentType string, id string) Identifier {
	ident := Identifier{identifierTypeKey: componentType}
	if id != "" {
		ident[identifierIDKey] = id
	}
	return ident
}

// Type returns the component type.
func (i Identifier) Type() string {
	return i[identifierTypeKey]
}

// ID returns the component instance id, if any.
func (i Identifier) ID() string {
	return i[identifierIDKey]
}

// With returns a copy of the identifier with an extra key set.
func (i Identifier) With(key, value string) Identifier {
	out := make(Identifier, len(i)+1)
	for k, v := range i {
		out[k] = v
	}
	out[key] = value
	return out
}

// String renders the identifier as "type(k=v, ...)" with keys sorted.
func (i Identifier) String() string {
	keys := make([]string, 0, len(i))
	for k := range i {
		if k != identifierTypeKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+i[k])
	}
	return i.Type() + "(" + strings.Join(parts, ", ") + ")"
}
