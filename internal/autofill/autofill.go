// Package autofill runs the batch annotation pipeline: one prompt and one
// completion call per row, results written into an autofill_* column.
package autofill

import (
	"context"
	"fmt"
	"strings"

	"fannotate/internal/codebook"
	"fannotate/internal/llm"
	"fannotate/internal/prompt"
)

// Completer issues one completion. Call failures are returned as sentinel
// "Error querying LLM: ..." values, never as errors.
type Completer interface {
	Complete(ctx context.Context, cfg llm.EngineConfig, promptText string, allowedValues []string) string
}

// Row is one unit of work: the source text plus its stable id.
type Row struct {
	ID   int
	Text string
}

// Result holds the populated output column after a batch run. Values are
// keyed by row id so callers can assign them independent of iteration order.
type Result struct {
	OutputColumn string
	Values       map[int]string
	Constrained  bool
	Status       string
}

// Run annotates every row of the batch, strictly sequentially and in the
// given order. Categorical attributes constrain completions to the
// attribute's category names; freetext attributes run unconstrained. A
// failing row gets its sentinel error value and processing continues; only
// setup failures before the first row abort the whole batch with a nil
// result.
func Run(ctx context.Context, completer Completer, rows []Row, attr codebook.Attribute, cfg llm.EngineConfig) (*Result, error) {
	if attr.Attribute == "" {
		return nil, fmt.Errorf("no attribute selected for auto-fill")
	}

	var allowedValues []string
	constrained := false
	if attr.Type == codebook.TypeCategorical {
		for _, cat := range attr.Categories {
			allowedValues = append(allowedValues, cat.Category)
		}
		if len(allowedValues) == 0 {
			return nil, fmt.Errorf("no valid values found for attribute %q", attr.Attribute)
		}
		constrained = true
	}

	result := &Result{
		OutputColumn: prompt.AutofillColumn(attr.Attribute),
		Values:       make(map[int]string, len(rows)),
		Constrained:  constrained,
	}
	if constrained {
		result.Status = fmt.Sprintf("Processing with LLM constrained to values: [%s]", strings.Join(allowedValues, ", "))
	} else {
		result.Status = "Processing with unconstrained LLM for free text response"
	}

	for _, row := range rows {
		text := prompt.Truncate(row.Text, cfg.MaxTranscriptLength)
		promptText := prompt.Build(attr, text)
		result.Values[row.ID] = completer.Complete(ctx, cfg, promptText, allowedValues)
	}

	return result, nil
}

// FailedCount counts rows whose cell carries a captured call failure.
func (r *Result) FailedCount() int {
	failed := 0
	for _, value := range r.Values {
		if llm.IsErrorValue(value) {
			failed++
		}
	}
	return failed
}
