package main

import (
	"fmt"
	"strings"
)

// reorderInterspersedFlags moves flag tokens ahead of positionals so the
// stdlib parser sees flags that follow a positional argument. Everything
// after a bare "--" stays positional.
func reorderInterspersedFlags(arguments []string, valueFlags map[string]bool) []string {
	if len(arguments) == 0 {
		return arguments
	}

	flags := make([]string, 0, len(arguments))
	positionals := make([]string, 0, len(arguments))

	for index := 0; index < len(arguments); index++ {
		argument := arguments[index]
		if argument == "--" {
			positionals = append(positionals, arguments[index+1:]...)
			break
		}
		if !isFlagToken(argument) {
			positionals = append(positionals, argument)
			continue
		}
		flags = append(flags, argument)
		if strings.Contains(argument, "=") {
			continue
		}
		if flagTakesValue(argument, valueFlags) && index+1 < len(arguments) {
			index++
			flags = append(flags, arguments[index])
		}
	}

	return append(flags, positionals...)
}

func isFlagToken(argument string) bool {
	return len(argument) > 1 && strings.HasPrefix(argument, "-")
}

func flagTakesValue(argument string, valueFlags map[string]bool) bool {
	if len(valueFlags) == 0 {
		return false
	}
	return valueFlags[strings.TrimLeft(argument, "-")]
}

// stringListFlag collects repeated occurrences of the same flag, for example
// --objective-add one --objective-add two.
type stringListFlag []string

func (f *stringListFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *stringListFlag) Set(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("value must not be empty")
	}
	*f = append(*f, trimmed)
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func joinCSV(values []string) string {
	return strings.Join(values, ",")
}

func parseMetadataPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("metadata must be key=value, got %q", pair)
		}
		metadata[key] = strings.TrimSpace(value)
	}
	return metadata, nil
}
