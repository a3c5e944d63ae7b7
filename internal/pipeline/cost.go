package pipeline

import (
	"context"
	"fmt"
	"math"

	"gatekeep/internal/config"
	"gatekeep/internal/types"
)

// estimateCost projects the run's token consumption and price. The output
// projection is a configurable multiplier over input tokens; the rate table
// and engine routing both come from configuration.
func estimateCost(enc types.Encoding, cfg *config.Config) types.CostEstimate {
	inputTokens := enc.EstimatedTokens
	outputTokens := int(math.Ceil(float64(inputTokens) * cfg.Cost.OutputMultiplier))

	engine := cfg.EngineFor(enc.Action)
	rate := cfg.Cost.Rates[engine]

	inputCost := float64(inputTokens) / 1000 * rate.InputPer1K
	outputCost := float64(outputTokens) / 1000 * rate.OutputPer1K

	return types.CostEstimate{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Breakdown: types.CostBreakdown{
			InputCost:  inputCost,
			OutputCost: outputCost,
			TotalCost:  inputCost + outputCost,
		},
		RecommendedEngine: engine,
		Confidence:        cfg.Cost.Confidence,
	}
}

// verifyBudget runs the advisory balance check against the external ledger.
// RequiredAmount is derived strictly from this run's estimate. Nothing is
// reserved or deducted here; the authoritative debit happens against actual
// usage after execution.
func verifyBudget(ctx context.Context, ledger types.Ledger, requesterID string, estimate types.CostEstimate) (types.BudgetVerification, error) {
	balance, err := ledger.Balance(ctx, requesterID)
	if err != nil {
		return types.BudgetVerification{}, fmt.Errorf("failed to query balance for %s: %w", requesterID, err)
	}

	v := types.BudgetVerification{
		Balance:        balance,
		RequiredAmount: estimate.Breakdown.TotalCost,
		Sufficient:     balance >= estimate.Breakdown.TotalCost,
		Sources:        []string{"primary"},
	}
	if !v.Sufficient {
		v.BlockReason = fmt.Sprintf("insufficient budget: required %.2f, available %.2f",
			v.RequiredAmount, v.Balance)
	}
	return v, nil
}
