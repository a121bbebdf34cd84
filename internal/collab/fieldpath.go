package collab

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	activitiesPrefix = "activities"
	maxFieldLength   = 190
)

// FieldPath is a validated form field reference: either a top-level name such as
// "destination" or a nested activity field "activities.<index>.<subfield>".
type FieldPath struct {
	raw      string
	index    int
	subfield string
	nested   bool
}

// ParseFieldPath validates the raw field reference sent by a client.
func ParseFieldPath(raw string) (FieldPath, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return FieldPath{}, fmt.Errorf("%w: empty", ErrInvalidField)
	}
	if len(trimmed) > maxFieldLength {
		return FieldPath{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidField, maxFieldLength)
	}

	segments := strings.Split(trimmed, ".")
	if segments[0] != activitiesPrefix || len(segments) == 1 {
		if len(segments) > 1 {
			return FieldPath{}, fmt.Errorf("%w: unsupported nested path %q", ErrInvalidField, trimmed)
		}
		return FieldPath{raw: trimmed}, nil
	}

	if len(segments) != 3 {
		return FieldPath{}, fmt.Errorf("%w: activity path %q must be activities.<index>.<subfield>", ErrInvalidField, trimmed)
	}
	index, err := strconv.Atoi(segments[1])
	if err != nil || index < 0 {
		return FieldPath{}, fmt.Errorf("%w: activity index %q", ErrInvalidField, segments[1])
	}
	if strings.TrimSpace(segments[2]) == "" {
		return FieldPath{}, fmt.Errorf("%w: missing activity subfield", ErrInvalidField)
	}
	return FieldPath{raw: trimmed, index: index, subfield: segments[2], nested: true}, nil
}

// String returns the normalized path.
func (p FieldPath) String() string {
	return p.raw
}

// Activity reports the activity index and subfield for nested paths.
func (p FieldPath) Activity() (index int, subfield string, ok bool) {
	return p.index, p.subfield, p.nested
}
