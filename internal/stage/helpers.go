package stage

import (
	"encoding/json"
	"strings"

	"adsplice/internal/insertion"
	"adsplice/internal/services"
)

// ParseDecision parses a persisted insertion decision and returns it.
// On failure it returns a services.ErrValidation suitable for stage
// Execute methods; downstream stages cannot run without a committed
// decision.
func ParseDecision(raw string) (insertion.Decision, error) {
	if strings.TrimSpace(raw) == "" {
		return insertion.Decision{}, services.Wrap(
			services.ErrValidation, "stage", "parse insertion decision",
			"Insertion decision missing; rerun planning", nil)
	}
	var decision insertion.Decision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return insertion.Decision{}, services.Wrap(
			services.ErrValidation, "stage", "parse insertion decision",
			"Insertion decision invalid; rerun planning", err)
	}
	if decision.Timestamp <= 0 {
		return insertion.Decision{}, services.Wrap(
			services.ErrValidation, "stage", "parse insertion decision",
			"Insertion decision has no usable timestamp; rerun planning", nil)
	}
	return decision, nil
}

// EncodeDecision serializes a committed decision for queue persistence.
func EncodeDecision(decision insertion.Decision) (string, error) {
	data, err := json.Marshal(decision)
	if err != nil {
		return "", services.Wrap(
			services.ErrValidation, "stage", "encode insertion decision", "", err)
	}
	return string(data), nil
}
