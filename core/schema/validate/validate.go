// Package validate walks a compiled schema descriptor and a record in
// lock-step and reports every violation with the offending field path. An
// empty violation list is the only pass signal; any violation fails closed.
package validate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	coreerrors "github.com/davidahmann/tend/core/errors"
	"github.com/davidahmann/tend/core/schema/descriptor"
)

type Violation struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Validator resolves schema refs to compiled descriptors.
type Validator struct {
	schemas map[string]descriptor.Schema
}

func New(schemas map[string]descriptor.Schema) *Validator {
	copied := make(map[string]descriptor.Schema, len(schemas))
	for ref, schema := range schemas {
		copied[ref] = schema
	}
	return &Validator{schemas: copied}
}

func (v *Validator) Schema(ref string) (descriptor.Schema, bool) {
	schema, ok := v.schemas[ref]
	return schema, ok
}

func (v *Validator) Refs() []string {
	refs := make([]string, 0, len(v.schemas))
	for ref := range v.schemas {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// ValidateRecord round-trips the record through JSON so typed records and
// generic maps validate identically, then applies the named schema. The error
// return covers lookup and marshal failures, not violations.
func (v *Validator) ValidateRecord(ref string, record any) ([]Violation, error) {
	schema, ok := v.schemas[ref]
	if !ok {
		return nil, coreerrors.New(coreerrors.CategoryInvalidInput, "schema_ref_unknown", "list available refs with tend schema check --help", false, "unknown schema ref %q", ref)
	}
	value, err := toGeneric(record)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "record_not_serializable", "", false)
	}
	return ValidateValue(schema, value), nil
}

// ValidateValue applies a compiled schema to a generic JSON object.
// Violations come back in declaration order; unknown-field violations for a
// closed schema follow, sorted by name.
func ValidateValue(schema descriptor.Schema, value map[string]any) []Violation {
	violations := make([]Violation, 0)
	validateObject("", schema.Closed, schema.Fields, value, &violations)
	return violations
}

func validateObject(prefix string, closed bool, fields []descriptor.Field, value map[string]any, out *[]Violation) {
	declared := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		declared[field.Name] = struct{}{}
		path := joinPath(prefix, field.Name)
		raw, present := value[field.Name]
		if !present || raw == nil {
			if field.Required {
				*out = append(*out, Violation{Path: path, Reason: "required field is missing"})
			}
			continue
		}
		validateValue(path, field, raw, out)
	}
	if !closed {
		return
	}
	unknown := make([]string, 0)
	for name := range value {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		*out = append(*out, Violation{Path: joinPath(prefix, name), Reason: "unknown field in closed record"})
	}
}

func validateValue(path string, field descriptor.Field, raw any, out *[]Violation) {
	switch field.Kind {
	case descriptor.KindString:
		text, ok := raw.(string)
		if !ok {
			*out = append(*out, Violation{Path: path, Reason: expected("string", raw)})
			return
		}
		if field.MinLength > 0 && len(text) < field.MinLength {
			*out = append(*out, Violation{Path: path, Reason: fmt.Sprintf("must be at least %d characters", field.MinLength)})
		}
		if field.Pattern != nil && !field.Pattern.MatchString(text) {
			*out = append(*out, Violation{Path: path, Reason: fmt.Sprintf("must match pattern %s", field.Pattern.String())})
		}
	case descriptor.KindNumber:
		if !isNumber(raw) {
			*out = append(*out, Violation{Path: path, Reason: expected("number", raw)})
		}
	case descriptor.KindBoolean:
		if _, ok := raw.(bool); !ok {
			*out = append(*out, Violation{Path: path, Reason: expected("boolean", raw)})
		}
	case descriptor.KindEnum:
		text, ok := raw.(string)
		if !ok {
			*out = append(*out, Violation{Path: path, Reason: expected("string", raw)})
			return
		}
		for _, allowed := range field.Values {
			if text == allowed {
				return
			}
		}
		*out = append(*out, Violation{Path: path, Reason: fmt.Sprintf("must be one of %s", strings.Join(field.Values, ", "))})
	case descriptor.KindArray:
		entries, ok := raw.([]any)
		if !ok {
			*out = append(*out, Violation{Path: path, Reason: expected("array", raw)})
			return
		}
		if field.MinLength > 0 && len(entries) < field.MinLength {
			*out = append(*out, Violation{Path: path, Reason: fmt.Sprintf("must contain at least %d entries", field.MinLength)})
		}
		for index, entry := range entries {
			entryPath := fmt.Sprintf("%s[%d]", path, index)
			if entry == nil {
				*out = append(*out, Violation{Path: entryPath, Reason: "entry must not be null"})
				continue
			}
			validateValue(entryPath, *field.Items, entry, out)
		}
	case descriptor.KindObject:
		object, ok := raw.(map[string]any)
		if !ok {
			*out = append(*out, Violation{Path: path, Reason: expected("object", raw)})
			return
		}
		if len(field.Fields) > 0 {
			validateObject(path, field.Closed, field.Fields, object, out)
			return
		}
		if field.Items != nil {
			keys := make([]string, 0, len(object))
			for key := range object {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				entry := object[key]
				entryPath := joinPath(path, key)
				if entry == nil {
					*out = append(*out, Violation{Path: entryPath, Reason: "entry must not be null"})
					continue
				}
				validateValue(entryPath, *field.Items, entry, out)
			}
		}
	}
}

// AsError folds a non-empty violation list into one classified error so the
// pipeline and CLI report every field in a single rejection.
func AsError(ref string, violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	parts := make([]string, 0, len(violations))
	for _, violation := range violations {
		parts = append(parts, violation.Path+": "+violation.Reason)
	}
	return coreerrors.New(coreerrors.CategoryInvalidInput, "schema_violation", "fix the listed fields and retry", false, "record violates %s: %s", ref, strings.Join(parts, "; "))
}

func toGeneric(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}
	return value, nil
}

func isNumber(raw any) bool {
	switch raw.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	default:
		return false
	}
}

func expected(kind string, raw any) string {
	return fmt.Sprintf("expected %s, got %s", kind, typeName(raw))
}

func typeName(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", raw)
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
