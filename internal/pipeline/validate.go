package pipeline

import (
	"fmt"

	"gatekeep/internal/config"
	"gatekeep/internal/types"
)

// Validation issue codes.
const (
	issueMissingAction   = "MISSING_ACTION"
	issueNoPermissions   = "NO_PERMISSIONS"
	issueExpandableScope = "EXPANDABLE_SCOPE"
	issueLowQualityScore = "LOW_QUALITY_SCORE"
)

// validateEncoding runs the blocking validation gate. The run passes iff
// there are zero blocking errors; warnings and suggestions ride along on the
// result without halting progress.
func validateEncoding(enc types.Encoding, cfg config.ValidationConfig) types.ValidationResult {
	var result types.ValidationResult

	if enc.Action == "" || !enc.Action.Valid() {
		result.Errors = append(result.Errors, types.ValidationIssue{
			Code:     issueMissingAction,
			Severity: types.SeverityCritical,
			Message:  fmt.Sprintf("encoding has no valid action kind (got %q)", enc.Action),
		})
	}

	if len(enc.Permissions) == 0 {
		result.Errors = append(result.Errors, types.ValidationIssue{
			Code:     issueNoPermissions,
			Severity: types.SeverityError,
			Message:  "encoding defines no permissions; at least one is required",
		})
	}

	if enc.ScopeBoundary == types.BoundaryExpandable {
		result.Warnings = append(result.Warnings, types.ValidationIssue{
			Code:     issueExpandableScope,
			Severity: types.SeverityWarning,
			Message:  "scope boundary is expandable; later widening will need a separate approval",
		})
	}

	if enc.QualityScore < cfg.QualityThreshold {
		result.Warnings = append(result.Warnings, types.ValidationIssue{
			Code:     issueLowQualityScore,
			Severity: types.SeverityWarning,
			Message: fmt.Sprintf("encoding quality %.2f is below threshold %.2f",
				enc.QualityScore, cfg.QualityThreshold),
		})
		result.Suggestions = append(result.Suggestions,
			"rephrase the request with more detail so intent can be encoded with higher confidence")
	}

	return result
}
