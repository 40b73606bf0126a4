package descriptor

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/kaptinlin/jsonschema"

	coreerrors "github.com/davidahmann/tend/core/errors"
)

// Descriptor documents are validated against this meta-schema before
// compilation so a malformed descriptor fails with a precise reason instead
// of a half-compiled schema.
//
//go:embed meta.schema.json
var metaSchemaJSON []byte

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseDocument meta-validates raw descriptor bytes and decodes them.
func ParseDocument(raw []byte, format Format) (Document, error) {
	jsonRaw, err := toJSON(raw, format)
	if err != nil {
		return Document{}, err
	}
	if err := metaValidate(jsonRaw); err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(jsonRaw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode descriptor: %w", err)
	}
	return doc, nil
}

func toJSON(raw []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return raw, nil
	case FormatYAML:
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("parse descriptor yaml: %w", err)
		}
		jsonRaw, err := json.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("convert descriptor yaml: %w", err)
		}
		return jsonRaw, nil
	default:
		return nil, fmt.Errorf("unsupported descriptor format %q", format)
	}
}

func metaValidate(jsonRaw []byte) error {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	metaSchema, err := compiler.Compile(metaSchemaJSON)
	if err != nil {
		return fmt.Errorf("compile descriptor meta-schema: %w", err)
	}
	result := metaSchema.ValidateJSON(jsonRaw)
	if !result.IsValid() {
		return fmt.Errorf("descriptor failed meta-validation: %v", result.Errors)
	}
	return nil
}

// LoadFile reads, meta-validates, and compiles one descriptor file. The
// format follows the file extension (.yaml/.yml or .json).
func LoadFile(path string) (Schema, error) {
	format, err := formatForPath(path)
	if err != nil {
		return Schema{}, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "descriptor_invalid", "use a .yaml, .yml, or .json descriptor file", false)
	}
	// #nosec G304 -- descriptor paths come from explicit configuration.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, coreerrors.Wrap(fmt.Errorf("read descriptor %s: %w", path, err), coreerrors.CategoryIOFailure, "descriptor_read_failed", "check the schema directory", false)
	}
	doc, err := ParseDocument(raw, format)
	if err != nil {
		return Schema{}, coreerrors.Wrap(fmt.Errorf("descriptor %s: %w", path, err), coreerrors.CategoryInvalidInput, "descriptor_invalid", "fix the descriptor document", false)
	}
	schema, err := Compile(doc)
	if err != nil {
		return Schema{}, coreerrors.Wrap(fmt.Errorf("descriptor %s: %w", path, err), coreerrors.CategoryInvalidInput, "descriptor_invalid", "fix the descriptor document", false)
	}
	return schema, nil
}

// LoadDir compiles every descriptor in dir, keyed by ref. A missing directory
// yields an empty map; duplicate refs within the directory are an error.
func LoadDir(dir string) (map[string]Schema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Schema{}, nil
		}
		return nil, coreerrors.Wrap(fmt.Errorf("read schema directory %s: %w", dir, err), coreerrors.CategoryIOFailure, "schema_dir_unreadable", "check the schema directory", false)
	}
	schemas := make(map[string]Schema)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, err := formatForPath(entry.Name()); err != nil {
			continue
		}
		schema, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, duplicate := schemas[schema.Ref]; duplicate {
			return nil, coreerrors.New(coreerrors.CategoryInvalidInput, "descriptor_ref_conflict", "keep one descriptor file per ref", false, "descriptor ref %s declared more than once in %s", schema.Ref, dir)
		}
		schemas[schema.Ref] = schema
	}
	return schemas, nil
}

// Resolve layers workspace descriptors over the built-in set: a workspace
// descriptor with the same ref replaces the built-in one.
func Resolve(schemaDir string) (map[string]Schema, error) {
	schemas, err := Builtin()
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "builtin_descriptor_broken", "reinstall the binary", false)
	}
	if strings.TrimSpace(schemaDir) == "" {
		return schemas, nil
	}
	overrides, err := LoadDir(schemaDir)
	if err != nil {
		return nil, err
	}
	for ref, schema := range overrides {
		schemas[ref] = schema
	}
	return schemas, nil
}

func formatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported descriptor extension %q", filepath.Ext(path))
	}
}
