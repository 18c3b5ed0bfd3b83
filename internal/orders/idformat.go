package orders

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDFormat reports whether a product id is well formed for the catalog in use.
type IDFormat func(id string) bool

// ObjectIDFormat accepts 24-char hex Mongo object ids, the storefront catalog's format.
func ObjectIDFormat(id string) bool { return primitive.IsValidObjectID(id) }

func UUIDFormat(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// OpaqueFormat accepts any short id without whitespace.
func OpaqueFormat(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	return strings.IndexFunc(id, unicode.IsSpace) < 0
}

// ParseIDFormat maps a config value to a validator, defaulting to opaque.
func ParseIDFormat(name string) IDFormat {
	switch strings.ToLower(name) {
	case "objectid":
		return ObjectIDFormat
	case "uuid":
		return UUIDFormat
	default:
		return OpaqueFormat
	}
}
