package main

import (
	"encoding/json"
	"fmt"
	"strings"

	coreerrors "github.com/davidahmann/tend/core/errors"
)

const (
	exitOK              = 0
	exitInvalidInput    = 1
	exitSafetyBlocked   = 2
	exitNotFound        = 3
	exitInternalFailure = 4
)

// errorDetail is embedded in every command output. Classified failures carry
// their own code, category, hint, and retryability; the envelope only fills
// exit-code defaults for fields a command left empty.
type errorDetail struct {
	Error         string `json:"error,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	Hint          string `json:"hint,omitempty"`
	Retryable     *bool  `json:"retryable,omitempty"`
}

func describeError(err error) errorDetail {
	if err == nil {
		return errorDetail{}
	}
	detail := errorDetail{
		Error:         err.Error(),
		ErrorCode:     coreerrors.CodeOf(err),
		ErrorCategory: string(coreerrors.CategoryOf(err)),
		Hint:          coreerrors.HintOf(err),
	}
	if detail.ErrorCategory != "" {
		retryable := coreerrors.RetryableOf(err)
		detail.Retryable = &retryable
	}
	return detail
}

func writeJSONOutput(output any, exitCode int) int {
	encoded, err := marshalOutputWithErrorEnvelope(output, exitCode)
	if err != nil {
		fmt.Println(`{"ok":false,"error":"failed to encode output","error_code":"encode_failed","error_category":"internal_failure","retryable":false}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}

func marshalOutputWithErrorEnvelope(output any, exitCode int) ([]byte, error) {
	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(asString(result["correlation_id"])) == "" {
		if correlationID := currentCorrelationID(); correlationID != "" {
			result["correlation_id"] = correlationID
		}
	}
	errorText := strings.TrimSpace(asString(result["error"]))
	if errorText == "" {
		return json.Marshal(result)
	}
	if strings.TrimSpace(asString(result["error_code"])) == "" {
		result["error_code"] = defaultErrorCode(exitCode)
	}
	if strings.TrimSpace(asString(result["error_category"])) == "" {
		result["error_category"] = string(defaultErrorCategory(exitCode))
	}
	if _, exists := result["retryable"]; !exists {
		category := coreerrors.Category(asString(result["error_category"]))
		result["retryable"] = defaultRetryable(category)
	}
	if strings.TrimSpace(asString(result["hint"])) == "" {
		result["hint"] = defaultHint(exitCode)
	}
	return json.Marshal(result)
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput, coreerrors.CategoryAlreadyExists:
		return exitInvalidInput
	case coreerrors.CategorySafetyBlocked, coreerrors.CategoryStateConflict:
		return exitSafetyBlocked
	case coreerrors.CategoryNotFound:
		return exitNotFound
	case coreerrors.CategoryIOFailure, coreerrors.CategoryInternalFailure:
		return exitInternalFailure
	}
	return fallbackExit
}

func defaultErrorCategory(exitCode int) coreerrors.Category {
	switch exitCode {
	case exitInvalidInput:
		return coreerrors.CategoryInvalidInput
	case exitSafetyBlocked:
		return coreerrors.CategorySafetyBlocked
	case exitNotFound:
		return coreerrors.CategoryNotFound
	default:
		return coreerrors.CategoryInternalFailure
	}
}

func defaultErrorCode(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "invalid_input"
	case exitSafetyBlocked:
		return "safety_blocked"
	case exitNotFound:
		return "not_found"
	default:
		return "internal_failure"
	}
}

func defaultHint(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "check command usage and input schema"
	case exitSafetyBlocked:
		return "preview with --dry-run, then retry with the issued confirm token"
	case exitNotFound:
		return "check the identifier against existing records"
	default:
		return "retry after checking local environment and logs"
	}
}

func defaultRetryable(category coreerrors.Category) bool {
	return category == coreerrors.CategoryStateConflict
}

func asString(value any) string {
	text, _ := value.(string)
	return text
}
