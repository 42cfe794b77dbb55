// Package prompt turns codebook attributes into LLM prompts and derives the
// annotation column names used across the working table.
package prompt

import (
	"fmt"
	"strings"

	"fannotate/internal/codebook"
)

var nameStripper = strings.NewReplacer("[", "", "]", "", "'", "")

// CleanName normalizes an attribute name for use as a column or lookup key:
// surrounding whitespace is trimmed, literal brackets and quotes are removed
// and spaces become underscores.
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	name = nameStripper.Replace(name)
	return strings.ReplaceAll(name, " ", "_")
}

// AutofillColumn is the model-output column for an attribute.
func AutofillColumn(attribute string) string {
	return "autofill_" + CleanName(attribute)
}

// UserColumn is the human-annotation column for an attribute.
func UserColumn(attribute string) string {
	return "user_" + CleanName(attribute)
}

// Build assembles the full prompt for one row: the attribute's opening
// instruction, one "- name: description" line per category in stored codebook
// order (categorical attributes only), the closing instruction, and finally
// the row text behind a "Text: " label.
func Build(attr codebook.Attribute, rowText string) string {
	var b strings.Builder
	b.WriteString(attr.InstructionStart)
	if attr.Type == codebook.TypeCategorical {
		for _, cat := range attr.Categories {
			fmt.Fprintf(&b, "- %s: %s\n\n", cat.Category, cat.Description)
		}
	}
	b.WriteString(attr.InstructionEnd)
	b.WriteString("\n\nText: ")
	b.WriteString(rowText)
	return b.String()
}

// BuildForAttribute looks the attribute up by normalized name and builds its
// prompt. A missing attribute yields a descriptive message string instead of
// an error so the operator sees what went wrong in place of a prompt.
func BuildForAttribute(cb *codebook.Codebook, name, rowText string) string {
	clean := CleanName(name)
	for _, code := range cb.Codes {
		if CleanName(code.Attribute) == clean {
			return Build(code, rowText)
		}
	}
	return fmt.Sprintf("Selected category '%s' not found in codebook", name)
}

// Truncate limits text to at most max characters (code points, not bytes).
// A non-positive max leaves the text untouched.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
