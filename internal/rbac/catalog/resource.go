package catalog

import (
	"strconv"
	"strings"
)

// ResourceType identifies a kind of CRM record. The zero value means "no resource".
type ResourceType uint8

const (
	ResourceClient ResourceType = iota + 1
	ResourceProperty
	ResourceTransaction
	ResourceDocument
)

var resourceNames = map[ResourceType]string{
	ResourceClient:      "client",
	ResourceProperty:    "property",
	ResourceTransaction: "transaction",
	ResourceDocument:    "document",
}

// ResourceTypes returns every resource type.
func ResourceTypes() []ResourceType {
	return []ResourceType{ResourceClient, ResourceProperty, ResourceTransaction, ResourceDocument}
}

// Valid reports whether t is defined by the catalog.
func (t ResourceType) Valid() bool {
	_, ok := resourceNames[t]
	return ok
}

func (t ResourceType) String() string {
	if name, ok := resourceNames[t]; ok {
		return name
	}
	return "ResourceType(" + strconv.Itoa(int(t)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (t ResourceType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, configError(ErrUnknownResourceType, t.String())
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ResourceType) UnmarshalText(text []byte) error {
	parsed, err := ParseResourceType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseResourceType resolves a serialized resource type. Plural table names
// ("clients", "properties") are accepted.
func ParseResourceType(name string) (ResourceType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	switch normalized {
	case "clients":
		normalized = "client"
	case "properties":
		normalized = "property"
	case "transactions":
		normalized = "transaction"
	case "documents":
		normalized = "document"
	}
	for t, typeName := range resourceNames {
		if typeName == normalized {
			return t, nil
		}
	}
	return 0, configError(ErrUnknownResourceType, name)
}

// Validate returns a ConfigError when t is outside the catalog.
func (t ResourceType) Validate() error {
	if !t.Valid() {
		return configError(ErrUnknownResourceType, t.String())
	}
	return nil
}
