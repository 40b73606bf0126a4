// Package descriptor defines the typed schema-descriptor model: a declarative
// description of required fields, kinds, enumerations, and patterns for each
// record kind, compiled from external YAML or JSON documents into a form the
// validator can walk without reflection or guessing.
package descriptor

import (
	"fmt"
	"regexp"
)

type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindEnum    Kind = "enum"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Document is the on-disk shape of a schema descriptor before compilation.
type Document struct {
	Ref    string          `json:"ref" yaml:"ref"`
	Closed bool            `json:"closed,omitempty" yaml:"closed,omitempty"`
	Fields []FieldDocument `json:"fields" yaml:"fields"`
}

type FieldDocument struct {
	Name      string          `json:"name" yaml:"name"`
	Kind      string          `json:"kind" yaml:"kind"`
	Required  bool            `json:"required,omitempty" yaml:"required,omitempty"`
	Pattern   string          `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	MinLength int             `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	Values    []string        `json:"values,omitempty" yaml:"values,omitempty"`
	Items     *FieldDocument  `json:"items,omitempty" yaml:"items,omitempty"`
	Fields    []FieldDocument `json:"fields,omitempty" yaml:"fields,omitempty"`
	Closed    bool            `json:"closed,omitempty" yaml:"closed,omitempty"`
}

// Schema is the compiled form. Field order preserves declaration order so
// violations come back in a stable, predictable sequence.
type Schema struct {
	Ref    string
	Closed bool
	Fields []Field
}

// Field is one tagged variant per kind:
//   - string: optional Pattern and MinLength
//   - number, boolean: no constraints beyond the kind
//   - enum: Values holds the allowed strings
//   - array: Items describes every element; MinLength is the minimum entry count
//   - object: Fields describes declared keys (Closed rejects undeclared ones),
//     or Items describes every value of a free-form string-keyed mapping
type Field struct {
	Name      string
	Kind      Kind
	Required  bool
	Pattern   *regexp.Regexp
	MinLength int
	Values    []string
	Items     *Field
	Fields    []Field
	Closed    bool
}

var refPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*@v[0-9]+$`)

// Compile checks a parsed document for structural soundness and produces the
// typed schema. Constraint keys that do not apply to a field's kind are
// rejected rather than ignored so descriptor typos surface at load time.
func Compile(doc Document) (Schema, error) {
	if !refPattern.MatchString(doc.Ref) {
		return Schema{}, fmt.Errorf("descriptor ref %q must match %s", doc.Ref, refPattern.String())
	}
	if len(doc.Fields) == 0 {
		return Schema{}, fmt.Errorf("descriptor %s declares no fields", doc.Ref)
	}
	fields, err := compileFields(doc.Ref, "", doc.Fields)
	if err != nil {
		return Schema{}, err
	}
	return Schema{Ref: doc.Ref, Closed: doc.Closed, Fields: fields}, nil
}

func compileFields(ref, parent string, docs []FieldDocument) ([]Field, error) {
	fields := make([]Field, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if doc.Name == "" {
			return nil, fmt.Errorf("descriptor %s: field under %q has no name", ref, displayParent(parent))
		}
		if _, duplicate := seen[doc.Name]; duplicate {
			return nil, fmt.Errorf("descriptor %s: duplicate field %q under %q", ref, doc.Name, displayParent(parent))
		}
		seen[doc.Name] = struct{}{}
		field, err := compileField(ref, joinFieldPath(parent, doc.Name), doc)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func compileField(ref, path string, doc FieldDocument) (Field, error) {
	kind := Kind(doc.Kind)
	field := Field{
		Name:      doc.Name,
		Kind:      kind,
		Required:  doc.Required,
		MinLength: doc.MinLength,
		Closed:    doc.Closed,
	}
	if doc.MinLength < 0 {
		return Field{}, fmt.Errorf("descriptor %s: field %s min_length must be >= 0", ref, path)
	}

	switch kind {
	case KindString:
		if err := rejectConstraints(ref, path, doc, constraintValues|constraintItems|constraintFields|constraintClosed); err != nil {
			return Field{}, err
		}
		if doc.Pattern != "" {
			compiled, err := regexp.Compile(doc.Pattern)
			if err != nil {
				return Field{}, fmt.Errorf("descriptor %s: field %s pattern: %w", ref, path, err)
			}
			field.Pattern = compiled
		}
	case KindNumber, KindBoolean:
		if err := rejectConstraints(ref, path, doc, constraintPattern|constraintMinLength|constraintValues|constraintItems|constraintFields|constraintClosed); err != nil {
			return Field{}, err
		}
	case KindEnum:
		if err := rejectConstraints(ref, path, doc, constraintPattern|constraintMinLength|constraintItems|constraintFields|constraintClosed); err != nil {
			return Field{}, err
		}
		if len(doc.Values) == 0 {
			return Field{}, fmt.Errorf("descriptor %s: enum field %s declares no values", ref, path)
		}
		seen := make(map[string]struct{}, len(doc.Values))
		for _, value := range doc.Values {
			if _, duplicate := seen[value]; duplicate {
				return Field{}, fmt.Errorf("descriptor %s: enum field %s repeats value %q", ref, path, value)
			}
			seen[value] = struct{}{}
		}
		field.Values = append([]string(nil), doc.Values...)
	case KindArray:
		if err := rejectConstraints(ref, path, doc, constraintPattern|constraintValues|constraintFields|constraintClosed); err != nil {
			return Field{}, err
		}
		if doc.Items == nil {
			return Field{}, fmt.Errorf("descriptor %s: array field %s declares no items schema", ref, path)
		}
		items, err := compileField(ref, path+"[]", *doc.Items)
		if err != nil {
			return Field{}, err
		}
		field.Items = &items
	case KindObject:
		if err := rejectConstraints(ref, path, doc, constraintPattern|constraintMinLength|constraintValues); err != nil {
			return Field{}, err
		}
		if len(doc.Fields) > 0 && doc.Items != nil {
			return Field{}, fmt.Errorf("descriptor %s: object field %s declares both fields and items", ref, path)
		}
		if len(doc.Fields) > 0 {
			nested, err := compileFields(ref, path, doc.Fields)
			if err != nil {
				return Field{}, err
			}
			field.Fields = nested
		} else if doc.Items != nil {
			items, err := compileField(ref, path+".*", *doc.Items)
			if err != nil {
				return Field{}, err
			}
			field.Items = &items
		}
	default:
		return Field{}, fmt.Errorf("descriptor %s: field %s has unknown kind %q", ref, path, doc.Kind)
	}
	return field, nil
}

type constraintMask int

const (
	constraintPattern constraintMask = 1 << iota
	constraintMinLength
	constraintValues
	constraintItems
	constraintFields
	constraintClosed
)

func rejectConstraints(ref, path string, doc FieldDocument, rejected constraintMask) error {
	if rejected&constraintPattern != 0 && doc.Pattern != "" {
		return fmt.Errorf("descriptor %s: field %s: pattern does not apply to kind %q", ref, path, doc.Kind)
	}
	if rejected&constraintMinLength != 0 && doc.MinLength != 0 {
		return fmt.Errorf("descriptor %s: field %s: min_length does not apply to kind %q", ref, path, doc.Kind)
	}
	if rejected&constraintValues != 0 && len(doc.Values) != 0 {
		return fmt.Errorf("descriptor %s: field %s: values do not apply to kind %q", ref, path, doc.Kind)
	}
	if rejected&constraintItems != 0 && doc.Items != nil {
		return fmt.Errorf("descriptor %s: field %s: items do not apply to kind %q", ref, path, doc.Kind)
	}
	if rejected&constraintFields != 0 && len(doc.Fields) != 0 {
		return fmt.Errorf("descriptor %s: field %s: nested fields do not apply to kind %q", ref, path, doc.Kind)
	}
	if rejected&constraintClosed != 0 && doc.Closed {
		return fmt.Errorf("descriptor %s: field %s: closed does not apply to kind %q", ref, path, doc.Kind)
	}
	return nil
}

func joinFieldPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func displayParent(parent string) string {
	if parent == "" {
		return "root"
	}
	return parent
}
