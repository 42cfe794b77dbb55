// Package agreement compares model-produced and human-produced annotation
// columns for one attribute. Categorical attributes get classification
// metrics and a confusion matrix; freetext attributes get embedding-based
// similarity and ROUGE overlap scores.
package agreement

import (
	"context"
	"sort"

	"fannotate/internal/codebook"

	"go.uber.org/zap"
)

// Embedder supplies contextual text embeddings for freetext similarity.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Pair is one comparable row: both annotation cells are present.
type Pair struct {
	RowID int
	Text  string
	Human string // reviewer-entered value, treated as ground truth
	Model string // autofill value
}

// Disagreement is one row where the model and the reviewer differ. For
// categorical attributes the annotations carry the category icon prefix for
// display.
type Disagreement struct {
	RowID int    `json:"row_id"`
	Text  string `json:"text"`
	Model string `json:"model_annotation"`
	Human string `json:"human_annotation"`
}

// ScoreTriple is a precision/recall/F1 report.
type ScoreTriple struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// SemanticScores reports embedding-based similarity between model and human
// freetext, averaged over comparable rows, plus the per-row F1 distribution.
type SemanticScores struct {
	ScoreTriple
	PerRowF1 []float64 `json:"per_row_f1"`
}

// Metrics is the agreement report for one attribute. Message is set instead
// of metrics when the preconditions fail (missing columns, no comparable
// rows): the engine reports, it never raises.
type Metrics struct {
	Attribute       string `json:"attribute"`
	Type            string `json:"type"`
	SamplesCompared int    `json:"samples_compared"`
	Message         string `json:"message,omitempty"`

	// Categorical branch. The score fields serialize even at zero: a fully
	// disagreeing comparison is a real result, not missing data.
	AgreementRate float64        `json:"agreement_rate"`
	Accuracy      float64        `json:"accuracy"`
	MacroF1       float64        `json:"macro_f1"`
	WeightedF1    float64        `json:"weighted_f1"`
	Labels        []string       `json:"labels,omitempty"`
	Confusion     [][]int        `json:"confusion_matrix,omitempty"`
	Disagreements []Disagreement `json:"disagreements,omitempty"`

	// Freetext branch.
	Semantic *SemanticScores        `json:"semantic,omitempty"`
	Rouge    map[string]ScoreTriple `json:"rouge,omitempty"`
}

// Engine computes agreement metrics.
type Engine struct {
	embedder Embedder
	logger   *zap.Logger
}

// NewEngine creates an agreement engine. The embedder may be nil; freetext
// reports then omit the semantic scores with an explanatory message.
func NewEngine(embedder Embedder, logger *zap.Logger) *Engine {
	return &Engine{embedder: embedder, logger: logger}
}

// Compare computes the agreement report for one attribute over the rows
// where both annotation cells are present.
func (e *Engine) Compare(ctx context.Context, attr codebook.Attribute, pairs []Pair) *Metrics {
	m := &Metrics{
		Attribute:       attr.Attribute,
		Type:            attr.Type,
		SamplesCompared: len(pairs),
	}
	if len(pairs) == 0 {
		m.Message = "No matching annotations found for comparison"
		return m
	}

	if attr.Type == codebook.TypeFreetext {
		e.compareFreetext(ctx, m, pairs)
	} else {
		compareCategorical(m, attr, pairs)
	}
	return m
}

func compareCategorical(m *Metrics, attr codebook.Attribute, pairs []Pair) {
	icons := make(map[string]string, len(attr.Categories))
	for _, cat := range attr.Categories {
		icons[cat.Category] = cat.Icon
	}

	labelSet := make(map[string]bool)
	for _, p := range pairs {
		labelSet[p.Human] = true
		labelSet[p.Model] = true
	}
	labels := make([]string, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	index := make(map[string]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}

	// Rows are the human (true) label, columns the model (predicted) label.
	confusion := make([][]int, len(labels))
	for i := range confusion {
		confusion[i] = make([]int, len(labels))
	}

	matches := 0
	for _, p := range pairs {
		confusion[index[p.Human]][index[p.Model]]++
		if p.Human == p.Model {
			matches++
		} else {
			m.Disagreements = append(m.Disagreements, Disagreement{
				RowID: p.RowID,
				Text:  p.Text,
				Model: withIcon(icons, p.Model),
				Human: withIcon(icons, p.Human),
			})
		}
	}

	total := len(pairs)
	m.Labels = labels
	m.Confusion = confusion
	m.Accuracy = float64(matches) / float64(total)
	m.AgreementRate = m.Accuracy

	// Per-class F1 from the confusion matrix; macro is the unweighted mean,
	// weighted uses true-class support.
	var macroSum, weightedSum float64
	for i := range labels {
		support := 0
		for j := range labels {
			support += confusion[i][j]
		}
		predicted := 0
		for j := range labels {
			predicted += confusion[j][i]
		}
		tp := confusion[i][i]

		var precision, recall, f1 float64
		if predicted > 0 {
			precision = float64(tp) / float64(predicted)
		}
		if support > 0 {
			recall = float64(tp) / float64(support)
		}
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		macroSum += f1
		weightedSum += f1 * float64(support)
	}
	m.MacroF1 = macroSum / float64(len(labels))
	m.WeightedF1 = weightedSum / float64(total)
}

func withIcon(icons map[string]string, value string) string {
	if icon := icons[value]; icon != "" {
		return icon + " " + value
	}
	return value
}

func (e *Engine) compareFreetext(ctx context.Context, m *Metrics, pairs []Pair) {
	m.Rouge = rougeReport(pairs)

	if e.embedder == nil {
		m.Message = "Semantic similarity unavailable: no embedding backend configured"
		return
	}
	semantic, err := e.semanticScores(ctx, pairs)
	if err != nil {
		e.logger.Error("Semantic similarity failed", zap.Error(err))
		m.Message = "Semantic similarity unavailable: " + err.Error()
		return
	}
	m.Semantic = semantic
}
