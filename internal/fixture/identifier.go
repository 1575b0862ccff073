package fixture

import (
	"fmt"
	"strings"
)

// Identifier names one fixture record: a type name plus a caller-chosen key.
// Keys are unique within a type and stable across repeated runs of the same
// fixture set. Identifiers are always supplied by the loading driver, never
// generated by the engine.
type Identifier struct {
	TypeName string `yaml:"type" json:"type"`
	Key      string `yaml:"key" json:"key"`
}

// NewIdentifier creates an Identifier for the given type name and key.
func NewIdentifier(typeName, key string) Identifier {
	return Identifier{TypeName: typeName, Key: key}
}

// ParseIdentifier parses the "Type:key" form used in scenario files.
// The key may itself contain colons; only the first colon separates.
func ParseIdentifier(s string) (Identifier, error) {
	typeName, key, ok := strings.Cut(s, ":")
	if !ok || typeName == "" || key == "" {
		return Identifier{}, fmt.Errorf("malformed identifier %q: want \"Type:key\"", s)
	}
	return Identifier{TypeName: typeName, Key: key}, nil
}

// String returns the identifier in "Type:key" form.
func (id Identifier) String() string {
	return id.TypeName + ":" + id.Key
}

// IsZero reports whether the identifier is unset.
func (id Identifier) IsZero() bool {
	return id.TypeName == "" && id.Key == ""
}
