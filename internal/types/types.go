// Package types provides shared type definitions used across gatekeep packages.
// This package exists to break import cycles between pipeline, agents, budget,
// and execution. Types in this package should be foundational data structures
// with no complex dependencies.
package types

import (
	"time"
)

// =============================================================================
// PIPELINE STAGES
// =============================================================================

// Stage identifies one of the ten ordered steps of the governed execution
// pipeline. The order returned by Stages is the only legal execution order.
type Stage string

const (
	StageIntentCapture       Stage = "intent_capture"
	StageSemanticEncoding    Stage = "semantic_encoding"
	StageEncodingValidation  Stage = "encoding_validation"
	StageCostEstimation      Stage = "cost_estimation"
	StageScopeLocking        Stage = "scope_locking"
	StageBudgetVerification  Stage = "budget_verification"
	StageAgentMatching       Stage = "agent_matching"
	StageControlledExecution Stage = "controlled_execution"
	StageResultCapture       Stage = "result_capture"
	StageAuditUpdate         Stage = "audit_update"
)

// Stages returns all pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageIntentCapture,
		StageSemanticEncoding,
		StageEncodingValidation,
		StageCostEstimation,
		StageScopeLocking,
		StageBudgetVerification,
		StageAgentMatching,
		StageControlledExecution,
		StageResultCapture,
		StageAuditUpdate,
	}
}

// Blocking reports whether a failure in this stage halts the entire run.
// Non-blocking stages convert their problems into warnings or degraded
// quality scores instead of stopping the pipeline.
func (s Stage) Blocking() bool {
	switch s {
	case StageEncodingValidation, StageScopeLocking, StageBudgetVerification, StageAgentMatching:
		return true
	}
	return false
}

// StageStatus is the lifecycle status of a single stage within a run.
// Transitions are monotonic: PENDING -> IN_PROGRESS -> {PASSED|FAILED|SKIPPED}.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StagePassed     StageStatus = "passed"
	StageFailed     StageStatus = "failed"
	StageSkipped    StageStatus = "skipped"
)

// Terminal reports whether the status admits no further transitions.
func (s StageStatus) Terminal() bool {
	return s == StagePassed || s == StageFailed || s == StageSkipped
}

// OverallStatus is the aggregate status of a pipeline run.
type OverallStatus string

const (
	RunActive    OverallStatus = "active"
	RunCompleted OverallStatus = "completed"
	RunFailed    OverallStatus = "failed"
	RunCancelled OverallStatus = "cancelled"
)

// =============================================================================
// ACTION TAXONOMY
// =============================================================================

// ActionKind is the closed set of actions an encoding may request.
type ActionKind string

const (
	ActionCreate    ActionKind = "create"
	ActionRead      ActionKind = "read"
	ActionUpdate    ActionKind = "update"
	ActionDelete    ActionKind = "delete"
	ActionAnalyze   ActionKind = "analyze"
	ActionGenerate  ActionKind = "generate"
	ActionTransform ActionKind = "transform"
	ActionSummarize ActionKind = "summarize"
	ActionSearch    ActionKind = "search"
	ActionFilter    ActionKind = "filter"
	ActionSort      ActionKind = "sort"
	ActionAggregate ActionKind = "aggregate"
	ActionSchedule  ActionKind = "schedule"
	ActionNotify    ActionKind = "notify"
	ActionShare     ActionKind = "share"
	ActionExport    ActionKind = "export"
)

// ActionKinds returns every member of the closed action set.
func ActionKinds() []ActionKind {
	return []ActionKind{
		ActionCreate, ActionRead, ActionUpdate, ActionDelete,
		ActionAnalyze, ActionGenerate, ActionTransform, ActionSummarize,
		ActionSearch, ActionFilter, ActionSort, ActionAggregate,
		ActionSchedule, ActionNotify, ActionShare, ActionExport,
	}
}

// Valid reports whether k is a member of the closed action set.
func (k ActionKind) Valid() bool {
	for _, known := range ActionKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Destructive reports whether the action can irreversibly alter data.
// Destructive actions are denied on system resources by default.
func (k ActionKind) Destructive() bool {
	return k == ActionDelete || k == ActionUpdate
}

// DataSourceKind identifies which context the encoding draws data from.
type DataSourceKind string

const (
	SourceSphere    DataSourceKind = "sphere"
	SourceDataspace DataSourceKind = "dataspace"
	SourceMixed     DataSourceKind = "mixed"
)

// ScopeBoundary controls whether a locked scope may later be widened.
type ScopeBoundary string

const (
	BoundaryStrict     ScopeBoundary = "strict"
	BoundaryFlexible   ScopeBoundary = "flexible"
	BoundaryExpandable ScopeBoundary = "expandable"
)

// Sensitivity classifies how carefully an encoding's execution must be handled.
type Sensitivity string

const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivitySecret       Sensitivity = "secret"
)

// =============================================================================
// REQUEST & INTENT
// =============================================================================

// Request is the raw submission from the glue layer. The pipeline never
// mutates it.
type Request struct {
	Input       string `json:"input"`
	Modality    string `json:"modality"` // text, voice, gesture
	RequesterID string `json:"requester_id"`
	SphereID    string `json:"sphere_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	ThreadID    string `json:"thread_id"`
	DataspaceID string `json:"dataspace_id,omitempty"`
}

// Intent is the captured form of a request. Immutable once produced.
type Intent struct {
	ID          string    `json:"id"`
	RawInput    string    `json:"raw_input"`
	Modality    string    `json:"modality"`
	Language    string    `json:"language"`
	Confidence  float64   `json:"confidence"` // [0,1], heuristic
	RequesterID string    `json:"requester_id"`
	SphereID    string    `json:"sphere_id,omitempty"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	ThreadID    string    `json:"thread_id"`
	DataspaceID string    `json:"dataspace_id,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// =============================================================================
// ENCODING
// =============================================================================

// PermissionEffect is the verdict a permission rule expresses.
type PermissionEffect string

const (
	PermissionAllow PermissionEffect = "allow"
	PermissionDeny  PermissionEffect = "deny"
)

// Permission grants or denies one action on a resource pattern.
type Permission struct {
	Action   ActionKind       `json:"action"`
	Resource string           `json:"resource"` // pattern, e.g. "*" or "system/*"
	Effect   PermissionEffect `json:"effect"`
}

// Encoding is the structured representation of a captured intent.
// Immutable once produced; validation findings never modify it.
type Encoding struct {
	IntentID        string         `json:"intent_id"`
	Action          ActionKind     `json:"action"`
	DataSource      DataSourceKind `json:"data_source"`
	ScopeBoundary   ScopeBoundary  `json:"scope_boundary"`
	Sensitivity     Sensitivity    `json:"sensitivity"`
	Permissions     []Permission   `json:"permissions"`
	EstimatedTokens int            `json:"estimated_tokens"`
	QualityScore    float64        `json:"quality_score"` // [0,1]
	Domains         []string       `json:"domains"`
	ResourceTypes   []string       `json:"resource_types"`
}

// =============================================================================
// VALIDATION
// =============================================================================

// IssueSeverity ranks a validation finding. Critical and error findings block
// the run; warnings do not.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityError    IssueSeverity = "error"
	SeverityWarning  IssueSeverity = "warning"
)

// Blocking reports whether a finding of this severity halts the run.
func (s IssueSeverity) Blocking() bool {
	return s == SeverityCritical || s == SeverityError
}

// ValidationIssue is a single typed finding from encoding validation.
type ValidationIssue struct {
	Code     string        `json:"code"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// ValidationResult aggregates findings from encoding validation.
type ValidationResult struct {
	Errors      []ValidationIssue `json:"errors"`   // blocking
	Warnings    []ValidationIssue `json:"warnings"` // non-blocking
	Suggestions []string          `json:"suggestions"`
}

// Passed reports whether validation found zero blocking issues.
func (v ValidationResult) Passed() bool {
	return len(v.Errors) == 0
}

// =============================================================================
// COST & BUDGET
// =============================================================================

// CostBreakdown itemizes a cost estimate.
type CostBreakdown struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
}

// CostEstimate projects the resources a run will consume.
type CostEstimate struct {
	InputTokens       int           `json:"input_tokens"`
	OutputTokens      int           `json:"output_tokens"`
	Breakdown         CostBreakdown `json:"breakdown"`
	RecommendedEngine string        `json:"recommended_engine"`
	Confidence        float64       `json:"confidence"`
}

// BudgetVerification is the outcome of the advisory balance check.
// RequiredAmount is derived strictly from the CostEstimate of the same run.
type BudgetVerification struct {
	Balance        float64  `json:"balance"`
	RequiredAmount float64  `json:"required_amount"`
	Sufficient     bool     `json:"sufficient"`
	Sources        []string `json:"sources,omitempty"`
	BlockReason    string   `json:"block_reason,omitempty"`
}

// =============================================================================
// SCOPE LOCK
// =============================================================================

// ScopeLock is an immutable, hashed boundary restricting what resources a run
// may touch. ScopeHash is a pure function of the Encoding.
type ScopeLock struct {
	ScopeHash        string    `json:"scope_hash"`
	Domains          []string  `json:"domains"`
	ResourceTypes    []string  `json:"resource_types"`
	MaxResults       int       `json:"max_results"`
	MaxDepth         int       `json:"max_depth"`
	ExpansionAllowed bool      `json:"expansion_allowed"`
	LockedAt         time.Time `json:"locked_at"`
}

// =============================================================================
// AGENT MATCHING
// =============================================================================

// CompatibilityChecks are the four independent boolean checks of the agent
// compatibility matrix.
type CompatibilityChecks struct {
	ActionCompatible     bool `json:"action_compatible"`
	ScopeCompatible      bool `json:"scope_compatible"`
	PermissionCompatible bool `json:"permission_compatible"`
	BudgetCompatible     bool `json:"budget_compatible"`
}

// AgentCandidate is one scored agent considered during matching.
type AgentCandidate struct {
	AgentID string              `json:"agent_id"`
	Level   int                 `json:"level"`
	Score   float64             `json:"score"`
	Checks  CompatibilityChecks `json:"checks"`
}

// AgentMatch is the outcome of agent matching. When no candidate clears the
// minimum score, Selected is nil and Alternatives carries the ranked rest.
type AgentMatch struct {
	Selected     *AgentCandidate  `json:"selected,omitempty"`
	Alternatives []AgentCandidate `json:"alternatives,omitempty"`
}

// =============================================================================
// EXECUTION
// =============================================================================

// ExecutionStatus is the lifecycle status of a supervised execution.
type ExecutionStatus string

const (
	ExecQueued    ExecutionStatus = "queued"
	ExecRunning   ExecutionStatus = "running"
	ExecPaused    ExecutionStatus = "paused"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
	ExecCancelled ExecutionStatus = "cancelled"
	ExecTimeout   ExecutionStatus = "timeout"
)

// Checkpoint marks an internal execution milestone. Pause and cancel are only
// honored between checkpoints, never mid-checkpoint.
type Checkpoint struct {
	Name       string    `json:"name"`
	Sequence   int       `json:"sequence"`
	TokensUsed int       `json:"tokens_used"`
	ReachedAt  time.Time `json:"reached_at"`
}

// ExecutionRecord tracks a supervised execution of the selected agent.
type ExecutionRecord struct {
	Status            ExecutionStatus `json:"status"`
	AgentID           string          `json:"agent_id"`
	TokensUsed        int             `json:"tokens_used"`
	ElapsedMs         int64           `json:"elapsed_ms"`
	CheckpointsPassed int             `json:"checkpoints_passed"`
	Checkpoints       []Checkpoint    `json:"checkpoints"`
	CanPause          bool            `json:"can_pause"`
	CanCancel         bool            `json:"can_cancel"`
	RequiresApproval  bool            `json:"requires_approval"`
	Error             string          `json:"error,omitempty"`
}

// QualityScores rate a captured result.
type QualityScores struct {
	Confidence   float64 `json:"confidence"`
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
}

// ResultRecord packages execution output with actual usage metadata.
type ResultRecord struct {
	Output     string        `json:"output"`
	OutputType string        `json:"output_type"`
	TokensUsed int           `json:"tokens_used"`
	ActualCost float64       `json:"actual_cost"`
	DurationMs int64         `json:"duration_ms"`
	Quality    QualityScores `json:"quality"`
}

// =============================================================================
// AUDIT
// =============================================================================

// HashChainLink ties an audit entry to its predecessor on the same thread.
type HashChainLink struct {
	PreviousHash string `json:"previous_hash"`
	CurrentHash  string `json:"current_hash"`
}

// AuditEntry is one append-only record on a thread's hash chain.
type AuditEntry struct {
	ID          string        `json:"id"`
	ThreadID    string        `json:"thread_id"`
	RunID       string        `json:"run_id"`
	Action      string        `json:"action"`
	Actor       string        `json:"actor"`
	ContentHash string        `json:"content_hash"`
	HashChain   HashChainLink `json:"hash_chain"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// =============================================================================
// RUN OUTCOME
// =============================================================================

// FailureDescriptor identifies exactly which gate failed and why.
type FailureDescriptor struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// RunResult is the typed outcome returned to the caller on completion or
// failure. Exactly one of Result or Failure is set.
type RunResult struct {
	RunID   string             `json:"run_id"`
	Status  OverallStatus      `json:"status"`
	Result  *ResultRecord      `json:"result,omitempty"`
	Failure *FailureDescriptor `json:"failure,omitempty"`
}
