package main

import (
	"reflect"
	"testing"
)

func TestReorderInterspersedFlags(t *testing.T) {
	cases := []struct {
		name       string
		arguments  []string
		valueFlags map[string]bool
		want       []string
	}{
		{
			name:      "no flags",
			arguments: []string{"one", "two"},
			want:      []string{"one", "two"},
		},
		{
			name:       "flag after positional moves forward",
			arguments:  []string{"extra", "--workspace", "ws", "--json"},
			valueFlags: map[string]bool{"workspace": true},
			want:       []string{"--workspace", "ws", "--json", "extra"},
		},
		{
			name:       "equals form keeps its value",
			arguments:  []string{"extra", "--workspace=ws"},
			valueFlags: map[string]bool{"workspace": true},
			want:       []string{"--workspace=ws", "extra"},
		},
		{
			name:       "double dash stops flag parsing",
			arguments:  []string{"--json", "--", "--workspace", "ws"},
			valueFlags: map[string]bool{"workspace": true},
			want:       []string{"--json", "--workspace", "ws"},
		},
		{
			name:       "boolean flag does not eat the next token",
			arguments:  []string{"--json", "value"},
			valueFlags: map[string]bool{"workspace": true},
			want:       []string{"--json", "value"},
		},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			got := reorderInterspersedFlags(testCase.arguments, testCase.valueFlags)
			if !reflect.DeepEqual(got, testCase.want) {
				t.Fatalf("reorder %v: got %v want %v", testCase.arguments, got, testCase.want)
			}
		})
	}
}

func TestStringListFlagCollectsRepeats(t *testing.T) {
	var values stringListFlag
	for _, value := range []string{"one", " two "} {
		if err := values.Set(value); err != nil {
			t.Fatalf("set %q: %v", value, err)
		}
	}
	if err := values.Set("  "); err == nil {
		t.Fatalf("expected empty value to be rejected")
	}
	if !reflect.DeepEqual([]string(values), []string{"one", "two"}) {
		t.Fatalf("unexpected values: %v", values)
	}
	if values.String() != "one,two" {
		t.Fatalf("unexpected String(): %q", values.String())
	}
}

func TestSplitCSVDropsEmptyParts(t *testing.T) {
	got := splitCSV(" a, ,b ,, c")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV: got %v want %v", got, want)
	}
}

func TestParseMetadataPairs(t *testing.T) {
	metadata, err := parseMetadataPairs([]string{"source=referral", "priority = high "})
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if metadata["source"] != "referral" || metadata["priority"] != "high" {
		t.Fatalf("unexpected metadata: %v", metadata)
	}
	if _, err := parseMetadataPairs([]string{"no-separator"}); err == nil {
		t.Fatalf("expected missing separator to be rejected")
	}
	if _, err := parseMetadataPairs([]string{"=value"}); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
	empty, err := parseMetadataPairs(nil)
	if err != nil || empty != nil {
		t.Fatalf("expected nil metadata for no pairs, got %v, %v", empty, err)
	}
}
