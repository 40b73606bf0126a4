package descriptor

import (
	"embed"
	"fmt"
	"path"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Builtin compiles the descriptors shipped in the binary. A workspace schema
// directory can override any of them by ref (see Resolve).
func Builtin() (map[string]Schema, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("read builtin descriptors: %w", err)
	}
	schemas := make(map[string]Schema, len(entries))
	for _, entry := range entries {
		raw, err := builtinFS.ReadFile(path.Join("builtin", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read builtin descriptor %s: %w", entry.Name(), err)
		}
		doc, err := ParseDocument(raw, FormatYAML)
		if err != nil {
			return nil, fmt.Errorf("builtin descriptor %s: %w", entry.Name(), err)
		}
		schema, err := Compile(doc)
		if err != nil {
			return nil, fmt.Errorf("builtin descriptor %s: %w", entry.Name(), err)
		}
		schemas[schema.Ref] = schema
	}
	return schemas, nil
}
