package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gatekeep/internal/audit"
	"gatekeep/internal/classify"
	"gatekeep/internal/config"
	"gatekeep/internal/events"
	"gatekeep/internal/execution"
	"gatekeep/internal/types"
)

// Orchestrator drives requests through the ten pipeline stages. All
// collaborators are explicit constructor dependencies; there is no global
// registry anywhere, so runs are unit-testable in isolation.
//
// Each run executes its stages strictly sequentially. Independent runs may
// execute concurrently; the only shared mutable state is the per-thread
// audit chain, which serializes inside audit.Chain.
type Orchestrator struct {
	cfg        *config.Config
	classifier classify.ActionClassifier
	detector   classify.LanguageDetector
	ledger     types.Ledger
	matcher    types.AgentMatcher
	supervisor *execution.Supervisor
	chain      *audit.Chain
	bus        *events.Bus
	logger     *zap.Logger
}

// NewOrchestrator wires an orchestrator from its collaborators. bus and
// logger may be nil; the others are required.
func NewOrchestrator(
	cfg *config.Config,
	classifier classify.ActionClassifier,
	detector classify.LanguageDetector,
	ledger types.Ledger,
	matcher types.AgentMatcher,
	supervisor *execution.Supervisor,
	chain *audit.Chain,
	bus *events.Bus,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if cfg == nil || classifier == nil || detector == nil || ledger == nil ||
		matcher == nil || supervisor == nil || chain == nil {
		return nil, errors.New("orchestrator requires config, classifier, detector, ledger, matcher, supervisor, and audit chain")
	}
	if bus == nil {
		bus = events.NewBus()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		classifier: classifier,
		detector:   detector,
		ledger:     ledger,
		matcher:    matcher,
		supervisor: supervisor,
		chain:      chain,
		bus:        bus,
		logger:     logger,
	}, nil
}

// NewRun registers a request and returns its run in the initial state, all
// stages PENDING. Callers that need the run id before execution starts (for
// example to record a human approval for secret work) create the run first
// and then pass it to Execute.
func (o *Orchestrator) NewRun(req types.Request) *Run {
	return newRun(uuid.NewString(), req)
}

// Execute drives a run through the pipeline and returns it with its terminal
// state. A blocking-stage failure is fail-fast: the failing stage and reason
// are recorded, later stages stay PENDING forever, and no retry is attempted
// here. Resubmission is a caller-level concern.
func (o *Orchestrator) Execute(ctx context.Context, run *Run, control *execution.Control) *Run {
	req := run.Request
	if control == nil {
		control = execution.NewControl()
	}

	log := o.logger.With(zap.String("run_id", run.ID), zap.String("thread_id", req.ThreadID))
	log.Info("pipeline run started", zap.String("requester_id", req.RequesterID))

	if o.runStages(ctx, run, control, log) {
		run.complete()
		o.publish(events.PipelineCompleted, run, "", "")
		log.Info("pipeline run completed")
	} else {
		o.publish(events.PipelineFailed, run, run.Failure.Stage, run.Failure.Message)
		log.Warn("pipeline run halted",
			zap.String("stage", string(run.Failure.Stage)),
			zap.String("reason", run.Failure.Message))
	}
	return run
}

// runStages executes stages in order, returning false on the first halt.
func (o *Orchestrator) runStages(ctx context.Context, run *Run, control *execution.Control, log *zap.Logger) bool {
	type stageFunc func(context.Context, *Run, *execution.Control) error

	steps := []struct {
		stage types.Stage
		fn    stageFunc
	}{
		{types.StageIntentCapture, o.stageCapture},
		{types.StageSemanticEncoding, o.stageEncode},
		{types.StageEncodingValidation, o.stageValidate},
		{types.StageCostEstimation, o.stageCost},
		{types.StageScopeLocking, o.stageScope},
		{types.StageBudgetVerification, o.stageBudget},
		{types.StageAgentMatching, o.stageMatch},
		{types.StageControlledExecution, o.stageExecute},
		{types.StageResultCapture, o.stageResult},
		{types.StageAuditUpdate, o.stageAudit},
	}

	for _, step := range steps {
		if err := run.startStage(step.stage); err != nil {
			// Unreachable by construction; a failed stage halts the loop.
			run.fail(step.stage, err.Error())
			return false
		}
		o.publish(events.StageStarted, run, step.stage, "")

		err := step.fn(ctx, run, control)
		if err != nil {
			_ = run.finishStage(step.stage, types.StageFailed, err.Error())
			o.publish(events.StageFailed, run, step.stage, err.Error())
			if errors.Is(err, context.Canceled) {
				run.cancel(step.stage, err.Error())
			} else {
				run.fail(step.stage, err.Error())
			}
			return false
		}

		_ = run.finishStage(step.stage, types.StagePassed, "")
		o.publish(events.StageCompleted, run, step.stage, "")
		log.Debug("stage passed", zap.String("stage", string(step.stage)))
	}
	return true
}

func (o *Orchestrator) publish(t events.EventType, run *Run, stage types.Stage, msg string) {
	o.bus.Publish(events.Event{
		Type:     t,
		RunID:    run.ID,
		ThreadID: run.Request.ThreadID,
		Stage:    stage,
		Message:  msg,
	})
}

// =============================================================================
// STAGE IMPLEMENTATIONS
// =============================================================================

func (o *Orchestrator) stageCapture(_ context.Context, run *Run, _ *execution.Control) error {
	intent, err := captureIntent(run.Request, o.cfg.Capture, o.detector)
	if err != nil {
		return err
	}
	run.Intent = &intent
	return nil
}

func (o *Orchestrator) stageEncode(_ context.Context, run *Run, _ *execution.Control) error {
	enc := encodeIntent(*run.Intent, o.classifier, o.cfg)
	run.Encoding = &enc
	return nil
}

func (o *Orchestrator) stageValidate(_ context.Context, run *Run, _ *execution.Control) error {
	result := validateEncoding(*run.Encoding, o.cfg.Validation)
	run.Validation = &result
	if !result.Passed() {
		first := result.Errors[0]
		return fmt.Errorf("encoding validation failed: [%s] %s (%d blocking issues)",
			first.Code, first.Message, len(result.Errors))
	}
	return nil
}

func (o *Orchestrator) stageCost(_ context.Context, run *Run, _ *execution.Control) error {
	estimate := estimateCost(*run.Encoding, o.cfg)
	run.Cost = &estimate
	return nil
}

func (o *Orchestrator) stageScope(_ context.Context, run *Run, _ *execution.Control) error {
	lock, err := lockScope(*run.Encoding, o.cfg.Scope)
	if err != nil {
		return err
	}
	run.Lock = &lock
	return nil
}

func (o *Orchestrator) stageBudget(ctx context.Context, run *Run, _ *execution.Control) error {
	verification, err := verifyBudget(ctx, o.ledger, run.Request.RequesterID, *run.Cost)
	if err != nil {
		return err
	}
	run.Budget = &verification
	if !verification.Sufficient {
		return errors.New(verification.BlockReason)
	}
	return nil
}

func (o *Orchestrator) stageMatch(ctx context.Context, run *Run, _ *execution.Control) error {
	match, err := o.matcher.Match(ctx, *run.Encoding, *run.Lock, *run.Cost)
	if err != nil {
		return fmt.Errorf("agent matching failed: %w", err)
	}
	run.Match = &match
	if match.Selected == nil {
		return fmt.Errorf("no compatible agent found (%d alternatives surfaced)", len(match.Alternatives))
	}
	return nil
}

func (o *Orchestrator) stageExecute(ctx context.Context, run *Run, control *execution.Control) error {
	record, invocation := o.supervisor.Run(ctx, run.ID, run.Request.ThreadID,
		*run.Encoding, run.Match.Selected.AgentID, control)
	run.Execution = &record

	switch record.Status {
	case types.ExecCompleted:
	case types.ExecCancelled:
		return fmt.Errorf("%w: %s", context.Canceled, record.Error)
	default:
		return fmt.Errorf("execution ended with status %s: %s", record.Status, record.Error)
	}

	// Authoritative deduction: charge actual usage, not the estimate. The
	// debit is idempotent per run id, so a retried completion cannot
	// double-charge. A failed charge does not un-run the execution; it is
	// logged and surfaced on the result instead of halting the run.
	actualCost := o.actualCost(invocation.TokensUsed, run.Cost.RecommendedEngine)
	if err := o.ledger.Debit(ctx, run.Request.RequesterID, actualCost, run.ID); err != nil {
		o.logger.Error("failed to debit actual usage",
			zap.String("run_id", run.ID),
			zap.Float64("amount", actualCost),
			zap.Error(err))
	}

	run.Result = buildResult(invocation, actualCost, *run.Encoding)
	return nil
}

// actualCost prices consumed tokens at the recommended engine's blended
// output rate. Output dominates consumption, so the output rate is the
// conservative choice.
func (o *Orchestrator) actualCost(tokensUsed int, engine string) float64 {
	rate, ok := o.cfg.Cost.Rates[engine]
	if !ok {
		rate = o.cfg.Cost.Rates[o.cfg.Cost.DefaultEngine]
	}
	return float64(tokensUsed) / 1000 * rate.OutputPer1K
}

func (o *Orchestrator) stageResult(_ context.Context, run *Run, _ *execution.Control) error {
	// Result capture never blocks: a missing output yields a low-quality
	// record, not a failure, since execution already completed.
	if run.Result == nil {
		run.Result = &types.ResultRecord{
			OutputType: "empty",
			Quality:    types.QualityScores{},
		}
	}
	return nil
}

func (o *Orchestrator) stageAudit(ctx context.Context, run *Run, _ *execution.Control) error {
	action := fmt.Sprintf("run completed: %s on %s (%d tokens, cost %.2f)",
		run.Encoding.Action, run.Encoding.DataSource,
		run.Result.TokensUsed, run.Result.ActualCost)
	entry, err := o.chain.Append(ctx, run.Request.ThreadID, run.ID, action, run.Request.RequesterID)
	if err != nil {
		return fmt.Errorf("audit update failed: %w", err)
	}
	run.Audit = &entry
	return nil
}

// buildResult packages execution output with actual usage metadata. Quality
// scores degrade when the output is empty rather than failing the run.
func buildResult(inv types.Invocation, actualCost float64, enc types.Encoding) *types.ResultRecord {
	quality := types.QualityScores{
		Confidence:   enc.QualityScore,
		Completeness: 1.0,
		Accuracy:     0.9,
	}
	if inv.Output == "" {
		quality = types.QualityScores{Confidence: 0.1, Completeness: 0.0, Accuracy: 0.1}
	}
	outputType := inv.OutputType
	if outputType == "" {
		outputType = "empty"
	}
	return &types.ResultRecord{
		Output:     inv.Output,
		OutputType: outputType,
		TokensUsed: inv.TokensUsed,
		ActualCost: actualCost,
		DurationMs: inv.DurationMs,
		Quality:    quality,
	}
}
