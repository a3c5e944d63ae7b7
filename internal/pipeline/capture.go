package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gatekeep/internal/classify"
	"gatekeep/internal/config"
	"gatekeep/internal/types"
)

// captureIntent builds an Intent from the raw request. It only fails on
// empty input; every other shortcoming is expressed as reduced confidence
// and dealt with downstream.
func captureIntent(req types.Request, cfg config.CaptureConfig, detector classify.LanguageDetector) (types.Intent, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return types.Intent{}, fmt.Errorf("intent capture requires non-empty input")
	}

	modality := req.Modality
	if modality == "" {
		modality = "text"
	}

	return types.Intent{
		ID:          uuid.NewString(),
		RawInput:    input,
		Modality:    modality,
		Language:    detector.Detect(input),
		Confidence:  captureConfidence(input, cfg),
		RequesterID: req.RequesterID,
		SphereID:    req.SphereID,
		WorkspaceID: req.WorkspaceID,
		ThreadID:    req.ThreadID,
		DataspaceID: req.DataspaceID,
		CapturedAt:  time.Now().UTC(),
	}, nil
}

// captureConfidence scores input heuristically: longer, more structured
// input earns higher confidence. Scaling constants are configuration.
func captureConfidence(input string, cfg config.CaptureConfig) float64 {
	conf := float64(len(input)) / float64(cfg.FullConfidenceChars)
	if conf > 1 {
		conf = 1
	}

	// Multi-word, sentence-like input reads as more deliberate than a bare
	// keyword, even when short.
	words := len(strings.Fields(input))
	if words >= 4 {
		conf += 0.1
	}
	if strings.ContainsAny(input, ".?!") {
		conf += 0.05
	}

	if conf > 1 {
		conf = 1
	}
	if conf < cfg.MinConfidence {
		conf = cfg.MinConfidence
	}
	return conf
}
