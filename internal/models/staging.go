package models

import (
	"fmt"

	"github.com/dmitrijs2005/stagingmanager/internal/common"
)

// RefField names the credentials field that holds the staging area reference.
// Older upload service versions return "urn", newer ones "uri".
type RefField string

const (
	RefURN RefField = "urn"
	RefURI RefField = "uri"
)

// ParseRefField validates a configured field name.
func ParseRefField(s string) (RefField, error) {
	switch RefField(s) {
	case RefURN, RefURI:
		return RefField(s), nil
	default:
		return "", fmt.Errorf("unknown staging reference field %q", s)
	}
}

// StagingCredentials is the opaque credential bag returned when a staging
// area is created.
type StagingCredentials map[string]any

// Reference returns the area reference stored under field. Only that field is
// consulted.
func (c StagingCredentials) Reference(field RefField) (string, error) {
	v, ok := c[string(field)]
	if !ok {
		return "", fmt.Errorf("%w: field %q", common.ErrMissingReference, field)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: field %q is %T", common.ErrMissingReference, field, v)
	}
	return s, nil
}
