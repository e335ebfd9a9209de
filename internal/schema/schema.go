// Package schema implements the structural shape checks declared against a
// path prefix and enforced on every set (spec §4.4).
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/multierr"

	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/value"
)

// Type is the set of JSON shapes a Schema can constrain.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeNull    Type = "null"
)

// Schema is a single declared constraint set, narrowed from the teacher's
// ColumnSchema fields (Length, MinValue/MaxValue, Pattern, Enum) to exactly
// the constraint families spec §4.4 calls for.
type Schema struct {
	Type Type

	// string
	MinLength *int
	MaxLength *int
	Pattern   string

	// number
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum *float64
	ExclusiveMaximum *float64

	// array
	MinItems   *int
	MaxItems   *int
	UniqueItems bool
	Items      *Schema

	// object
	Properties map[string]*Schema
	Required   []string

	// any type
	Enum []value.Value

	compiledPattern *regexp.Regexp
}

// Compile validates the schema's own declaration (e.g. regex syntax) and
// caches anything expensive to re-derive per validation call.
func (s *Schema) Compile() error {
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return common.NewValidationError("schema: invalid pattern %q: %v", s.Pattern, err)
		}
		s.compiledPattern = re
	}
	for _, child := range s.Properties {
		if err := child.Compile(); err != nil {
			return err
		}
	}
	if s.Items != nil {
		if err := s.Items.Compile(); err != nil {
			return err
		}
	}
	return nil
}

// Registry maps a path prefix to the schema declared against it (spec §4.4).
type Registry struct {
	// prefixes maps each declared path prefix, as written, to its schema;
	// Validate tests "is P a prefix of Q" with string comparison.
	prefixes map[string]*Schema
}

// NewRegistry builds a Registry from a prefix->schema mapping, compiling
// every schema eagerly so that a bad regex fails at open time rather than on
// the first write.
func NewRegistry(schemas map[string]*Schema) (*Registry, error) {
	r := &Registry{prefixes: make(map[string]*Schema, len(schemas))}
	var errs error
	for prefix, s := range schemas {
		if err := s.Compile(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prefix %q: %w", prefix, err))
			continue
		}
		r.prefixes[prefix] = s
	}
	if errs != nil {
		return nil, errs
	}
	return r, nil
}

// Validate checks an incoming value being written at path q against every
// registered schema whose prefix is a prefix of q, validating the
// projection restricted to the remainder q\prefix.
func (r *Registry) Validate(q string, v value.Value) error {
	if r == nil {
		return nil
	}
	for prefix, s := range r.prefixes {
		remainder, ok := stripPrefix(q, prefix)
		if !ok {
			continue
		}
		sub := s.descend(value.ParsePath(remainder))
		if sub == nil {
			continue
		}
		if err := sub.validateValue(q, v); err != nil {
			return err
		}
	}
	return nil
}

// descend walks the schema's declared shape (Properties/Items) by the
// remainder segments between a registered prefix P and the write path Q,
// returning the sub-schema that actually governs the value being written at
// Q. A nil result means the remainder addresses something the schema does
// not constrain (no properties/items declared that deep), so no check
// applies.
func (s *Schema) descend(remainder value.Path) *Schema {
	cur := s
	for _, seg := range remainder {
		switch {
		case cur.Properties != nil:
			child, ok := cur.Properties[seg]
			if !ok {
				return nil
			}
			cur = child
		case cur.Items != nil:
			if _, isIdx := parseIndexSegment(seg); !isIdx {
				return nil
			}
			cur = cur.Items
		default:
			return nil
		}
	}
	return cur
}

func parseIndexSegment(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// stripPrefix reports whether prefix is a dot-path prefix of q, and if so
// returns the remaining suffix (without a leading dot).
func stripPrefix(q, prefix string) (string, bool) {
	if prefix == "" {
		return q, true
	}
	if q == prefix {
		return "", true
	}
	if strings.HasPrefix(q, prefix+".") {
		return q[len(prefix)+1:], true
	}
	return "", false
}

func (s *Schema) validateValue(at string, v value.Value) error {
	var errs error

	if err := s.checkType(at, v); err != nil {
		errs = multierr.Append(errs, err)
		// A type mismatch makes the remaining shape checks meaningless.
		return errs
	}

	switch s.Type {
	case TypeString:
		str, _ := v.StringVal()
		if s.MinLength != nil && len(str) < *s.MinLength {
			errs = multierr.Append(errs, common.NewValidationError("%s: length %d below minLength %d", at, len(str), *s.MinLength))
		}
		if s.MaxLength != nil && len(str) > *s.MaxLength {
			errs = multierr.Append(errs, common.NewValidationError("%s: length %d above maxLength %d", at, len(str), *s.MaxLength))
		}
		if s.compiledPattern != nil && !s.compiledPattern.MatchString(str) {
			errs = multierr.Append(errs, common.NewValidationError("%s: value %q does not match pattern %q", at, str, s.Pattern))
		}
	case TypeNumber:
		n, _ := v.NumberVal()
		if s.Minimum != nil && n < *s.Minimum {
			errs = multierr.Append(errs, common.NewValidationError("%s: %g below minimum %g", at, n, *s.Minimum))
		}
		if s.Maximum != nil && n > *s.Maximum {
			errs = multierr.Append(errs, common.NewValidationError("%s: %g above maximum %g", at, n, *s.Maximum))
		}
		if s.ExclusiveMinimum != nil && n <= *s.ExclusiveMinimum {
			errs = multierr.Append(errs, common.NewValidationError("%s: %g not above exclusiveMinimum %g", at, n, *s.ExclusiveMinimum))
		}
		if s.ExclusiveMaximum != nil && n >= *s.ExclusiveMaximum {
			errs = multierr.Append(errs, common.NewValidationError("%s: %g not below exclusiveMaximum %g", at, n, *s.ExclusiveMaximum))
		}
	case TypeArray:
		items, _ := v.Items()
		if s.MinItems != nil && len(items) < *s.MinItems {
			errs = multierr.Append(errs, common.NewValidationError("%s: %d items below minItems %d", at, len(items), *s.MinItems))
		}
		if s.MaxItems != nil && len(items) > *s.MaxItems {
			errs = multierr.Append(errs, common.NewValidationError("%s: %d items above maxItems %d", at, len(items), *s.MaxItems))
		}
		if s.UniqueItems && hasDuplicate(items) {
			errs = multierr.Append(errs, common.NewValidationError("%s: items are not unique", at))
		}
		if s.Items != nil {
			for i, item := range items {
				if err := s.Items.validateValue(fmt.Sprintf("%s.%d", at, i), item); err != nil {
					errs = multierr.Append(errs, err)
				}
			}
		}
	case TypeObject:
		for _, req := range s.Required {
			if _, ok := v.Field(req); !ok {
				errs = multierr.Append(errs, common.NewValidationError("%s: missing required property %q", at, req))
			}
		}
		for key, childSchema := range s.Properties {
			childVal, ok := v.Field(key)
			if !ok {
				continue
			}
			if err := childSchema.validateValue(joinPath(at, key), childVal); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}

	if len(s.Enum) > 0 && !enumContains(s.Enum, v) {
		errs = multierr.Append(errs, common.NewValidationError("%s: value not in enum", at))
	}

	return errs
}

func (s *Schema) checkType(at string, v value.Value) error {
	if s.Type == "" {
		return nil
	}
	var ok bool
	switch s.Type {
	case TypeObject:
		ok = v.IsObject()
	case TypeArray:
		ok = v.IsArray()
	case TypeString:
		ok = v.IsString()
	case TypeNumber:
		ok = v.IsNumber()
	case TypeBoolean:
		ok = v.IsBool()
	case TypeNull:
		ok = v.IsNull()
	default:
		return common.NewValidationError("%s: unknown schema type %q", at, s.Type)
	}
	if !ok {
		return common.NewValidationError("%s: expected type %s, got %s", at, s.Type, v.Kind())
	}
	return nil
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}

func hasDuplicate(items []value.Value) bool {
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if value.Equal(items[i], items[j]) {
				return true
			}
		}
	}
	return false
}

func enumContains(enum []value.Value, v value.Value) bool {
	for _, e := range enum {
		if value.Equal(e, v) {
			return true
		}
	}
	return false
}
