package main

import (
	stderrors "errors"
	"strings"
	"testing"

	coreerrors "github.com/davidahmann/tend/core/errors"
)

func TestMarshalOutputWithErrorEnvelope(t *testing.T) {
	setCurrentCorrelationID("cid-test")
	t.Cleanup(func() {
		setCurrentCorrelationID("")
	})
	payload := map[string]any{
		"ok":    false,
		"error": "boom",
	}
	encoded, err := marshalOutputWithErrorEnvelope(payload, exitInvalidInput)
	if err != nil {
		t.Fatalf("marshalOutputWithErrorEnvelope error: %v", err)
	}
	result := string(encoded)
	if !strings.Contains(result, `"error_code":"invalid_input"`) {
		t.Fatalf("missing error_code in output: %s", result)
	}
	if !strings.Contains(result, `"error_category":"invalid_input"`) {
		t.Fatalf("missing error_category in output: %s", result)
	}
	if !strings.Contains(result, `"retryable":false`) {
		t.Fatalf("missing retryable in output: %s", result)
	}
	if !strings.Contains(result, `"hint":"check command usage and input schema"`) {
		t.Fatalf("missing hint in output: %s", result)
	}
	if !strings.Contains(result, `"correlation_id":"cid-test"`) {
		t.Fatalf("missing correlation id in output: %s", result)
	}
}

func TestMarshalOutputKeepsClassifiedFields(t *testing.T) {
	cause := coreerrors.New(coreerrors.CategoryStateConflict, "version_conflict", "re-read and retry", true, "version moved")
	payload := sessionOutput{errorDetail: describeError(cause)}
	encoded, err := marshalOutputWithErrorEnvelope(payload, exitSafetyBlocked)
	if err != nil {
		t.Fatalf("marshalOutputWithErrorEnvelope error: %v", err)
	}
	result := string(encoded)
	if !strings.Contains(result, `"error_code":"version_conflict"`) {
		t.Fatalf("classified code overwritten: %s", result)
	}
	if !strings.Contains(result, `"error_category":"state_conflict"`) {
		t.Fatalf("classified category overwritten: %s", result)
	}
	if !strings.Contains(result, `"retryable":true`) {
		t.Fatalf("classified retryable lost: %s", result)
	}
	if !strings.Contains(result, `"hint":"re-read and retry"`) {
		t.Fatalf("classified hint lost: %s", result)
	}
}

func TestMarshalOutputWithCorrelationForSuccess(t *testing.T) {
	setCurrentCorrelationID("cid-success")
	t.Cleanup(func() {
		setCurrentCorrelationID("")
	})
	payload := map[string]any{"ok": true}
	encoded, err := marshalOutputWithErrorEnvelope(payload, exitOK)
	if err != nil {
		t.Fatalf("marshalOutputWithErrorEnvelope error: %v", err)
	}
	if !strings.Contains(string(encoded), `"correlation_id":"cid-success"`) {
		t.Fatalf("missing correlation_id for success output: %s", encoded)
	}
}

func TestExitCodeForError(t *testing.T) {
	if got := exitCodeForError(nil, exitInvalidInput); got != exitOK {
		t.Fatalf("nil error: expected %d got %d", exitOK, got)
	}
	cases := []struct {
		category coreerrors.Category
		want     int
	}{
		{coreerrors.CategoryInvalidInput, exitInvalidInput},
		{coreerrors.CategoryAlreadyExists, exitInvalidInput},
		{coreerrors.CategorySafetyBlocked, exitSafetyBlocked},
		{coreerrors.CategoryStateConflict, exitSafetyBlocked},
		{coreerrors.CategoryNotFound, exitNotFound},
		{coreerrors.CategoryIOFailure, exitInternalFailure},
		{coreerrors.CategoryInternalFailure, exitInternalFailure},
	}
	for _, testCase := range cases {
		err := coreerrors.New(testCase.category, "code", "", false, "boom")
		if got := exitCodeForError(err, exitOK); got != testCase.want {
			t.Fatalf("category %s: expected %d got %d", testCase.category, testCase.want, got)
		}
	}
	if got := exitCodeForError(stderrors.New("plain"), exitInvalidInput); got != exitInvalidInput {
		t.Fatalf("unclassified error: expected fallback %d got %d", exitInvalidInput, got)
	}
}

func TestDescribeError(t *testing.T) {
	if detail := describeError(nil); detail.Error != "" || detail.Retryable != nil {
		t.Fatalf("nil error should yield empty detail, got %+v", detail)
	}
	plain := describeError(stderrors.New("plain"))
	if plain.Error != "plain" || plain.ErrorCategory != "" || plain.Retryable != nil {
		t.Fatalf("unclassified error detail unexpected: %+v", plain)
	}
	classified := describeError(coreerrors.New(coreerrors.CategoryNotFound, "session_not_found", "run tend session init", false, "no session"))
	if classified.ErrorCode != "session_not_found" || classified.ErrorCategory != "not_found" {
		t.Fatalf("classified detail unexpected: %+v", classified)
	}
	if classified.Retryable == nil || *classified.Retryable {
		t.Fatalf("expected retryable false, got %+v", classified.Retryable)
	}
}

func TestDefaultErrorMappings(t *testing.T) {
	cases := []struct {
		exitCode int
		category coreerrors.Category
		code     string
	}{
		{exitInvalidInput, coreerrors.CategoryInvalidInput, "invalid_input"},
		{exitSafetyBlocked, coreerrors.CategorySafetyBlocked, "safety_blocked"},
		{exitNotFound, coreerrors.CategoryNotFound, "not_found"},
		{exitInternalFailure, coreerrors.CategoryInternalFailure, "internal_failure"},
	}
	for _, testCase := range cases {
		if got := defaultErrorCategory(testCase.exitCode); got != testCase.category {
			t.Fatalf("exit %d: expected category %s got %s", testCase.exitCode, testCase.category, got)
		}
		if got := defaultErrorCode(testCase.exitCode); got != testCase.code {
			t.Fatalf("exit %d: expected code %s got %s", testCase.exitCode, testCase.code, got)
		}
		if hint := defaultHint(testCase.exitCode); hint == "" {
			t.Fatalf("exit %d: expected a hint", testCase.exitCode)
		}
	}
	if !defaultRetryable(coreerrors.CategoryStateConflict) {
		t.Fatalf("state_conflict should default retryable")
	}
	if defaultRetryable(coreerrors.CategorySafetyBlocked) {
		t.Fatalf("safety_blocked should not default retryable")
	}
}
