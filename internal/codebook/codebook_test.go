package codebook

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "codebook.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestAddAttribute_RejectsDuplicateName(t *testing.T) {
	cb := New("calls.xlsx")
	if err := cb.AddAttribute("sentiment", "overall tone", TypeCategorical, "Classify:", "Answer with one label."); err != nil {
		t.Fatalf("add attribute: %v", err)
	}
	err := cb.AddAttribute("sentiment", "other", TypeFreetext, "", "")
	if !errors.Is(err, ErrDuplicateAttribute) {
		t.Fatalf("expected duplicate attribute error, got %v", err)
	}
	if len(cb.Codes) != 1 {
		t.Fatalf("duplicate add changed the codebook: %d attributes", len(cb.Codes))
	}
	if cb.Codes[0].Type != TypeCategorical {
		t.Fatalf("existing attribute mutated: type %q", cb.Codes[0].Type)
	}
}

func TestAddAttribute_RejectsEmptyNameAndUnknownType(t *testing.T) {
	cb := New("")
	if err := cb.AddAttribute("", "d", TypeCategorical, "", ""); !errors.Is(err, ErrEmptyField) {
		t.Fatalf("expected empty field error, got %v", err)
	}
	if err := cb.AddAttribute("x", "d", "numeric", "", ""); err == nil {
		t.Fatal("expected error for unknown attribute type")
	}
	if len(cb.Codes) != 0 {
		t.Fatalf("failed adds changed the codebook: %d attributes", len(cb.Codes))
	}
}

func TestAddAttribute_NamesAreCaseSensitive(t *testing.T) {
	cb := New("")
	if err := cb.AddAttribute("Sentiment", "", TypeCategorical, "", ""); err != nil {
		t.Fatalf("add attribute: %v", err)
	}
	if err := cb.AddAttribute("sentiment", "", TypeCategorical, "", ""); err != nil {
		t.Fatalf("differently-cased name rejected: %v", err)
	}
}

func TestAddCategory_RejectsDuplicateAndMissing(t *testing.T) {
	cb := New("")
	if err := cb.AddAttribute("sentiment", "", TypeCategorical, "", ""); err != nil {
		t.Fatalf("add attribute: %v", err)
	}
	if err := cb.AddCategory("sentiment", "positive", "good tone", "😊"); err != nil {
		t.Fatalf("add category: %v", err)
	}
	if err := cb.AddCategory("sentiment", "positive", "again", ""); !errors.Is(err, ErrDuplicateCategory) {
		t.Fatalf("expected duplicate category error, got %v", err)
	}
	if err := cb.AddCategory("missing", "x", "y", ""); !errors.Is(err, ErrAttributeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := cb.AddCategory("sentiment", "", "y", ""); !errors.Is(err, ErrEmptyField) {
		t.Fatalf("expected empty field error, got %v", err)
	}
	if got := cb.GetCategoryNames("sentiment"); !reflect.DeepEqual(got, []string{"positive"}) {
		t.Fatalf("category list changed by failed adds: %v", got)
	}
}

func TestAddCategory_IconDefaultsToEmpty(t *testing.T) {
	cb := New("")
	cb.AddAttribute("sentiment", "", TypeCategorical, "", "")
	if err := cb.AddCategory("sentiment", "neutral", "neither", ""); err != nil {
		t.Fatalf("add category: %v", err)
	}
	if icon := cb.Codes[0].Categories[0].Icon; icon != "" {
		t.Fatalf("icon not defaulted: %q", icon)
	}
}

func TestRemoveAttribute(t *testing.T) {
	cb := New("")
	cb.AddAttribute("a", "", TypeCategorical, "", "")
	cb.AddAttribute("b", "", TypeFreetext, "", "")
	if err := cb.RemoveAttribute("a"); err != nil {
		t.Fatalf("remove attribute: %v", err)
	}
	if got := cb.ListAttributeNames(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("unexpected attributes after remove: %v", got)
	}
	if err := cb.RemoveAttribute("a"); !errors.Is(err, ErrAttributeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("dataset.xlsx"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AddAttribute("sentiment", "overall tone", TypeCategorical, "Classify the text.", "Answer with one label."); err != nil {
		t.Fatalf("add attribute: %v", err)
	}
	if _, err := store.AddCategory("sentiment", "positive", "good tone", "😊"); err != nil {
		t.Fatalf("add category: %v", err)
	}
	if _, err := store.AddCategory("sentiment", "negative", "bad tone", ""); err != nil {
		t.Fatalf("add category: %v", err)
	}

	first, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// load -> save -> load must produce an identical structure.
	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read codebook file: %v", err)
	}
	reparsed, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(first, reparsed) {
		t.Fatalf("round trip mismatch:\n%#v\n%#v", first, reparsed)
	}
	if got := reparsed.GetCategoryNames("sentiment"); !reflect.DeepEqual(got, []string{"positive", "negative"}) {
		t.Fatalf("category order not preserved: %v", got)
	}
}

func TestStore_FailedMutationLeavesFileUnchanged(t *testing.T) {
	store := newTestStore(t)
	store.Create("d")
	store.AddAttribute("sentiment", "", TypeCategorical, "", "")

	before, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if _, err := store.AddAttribute("sentiment", "", TypeCategorical, "", ""); err == nil {
		t.Fatal("expected duplicate attribute error")
	}

	after, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("failed mutation rewrote the codebook file")
	}
}

func TestStore_RemoveAttributeKeepsBackup(t *testing.T) {
	store := newTestStore(t)
	store.Create("d")
	store.AddAttribute("sentiment", "", TypeCategorical, "", "")

	if _, err := store.RemoveAttribute("sentiment"); err != nil {
		t.Fatalf("remove attribute: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	found := false
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "backup_") {
			found = true
		}
	}
	if !found {
		t.Fatal("no backup file written before rewrite")
	}

	cb, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cb.Codes) != 0 {
		t.Fatalf("attribute not removed: %v", cb.ListAttributeNames())
	}
}

func TestParse_RejectsMissingRequiredKeys(t *testing.T) {
	if _, err := Parse([]byte(`{"codes": []}`)); err == nil {
		t.Fatal("expected error for missing created_at")
	}
	if _, err := Parse([]byte(`{"created_at": "01/01/2025 00:00:00"}`)); err == nil {
		t.Fatal("expected error for missing codes")
	}
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParse_PreservesAttributeShape(t *testing.T) {
	raw := `{
		"created_at": "05/11/2024 12:30:00",
		"dataset": "calls.xlsx",
		"codes": [
			{
				"attribute": "sentiment",
				"description": "overall tone",
				"type": "categorical",
				"instruction_start": "Classify the text.",
				"instruction_end": "Answer with one label.",
				"categories": [
					{"category": "positive", "description": "good", "icon": "😊"}
				]
			}
		]
	}`
	cb, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	out, err := json.Marshal(cb)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !reflect.DeepEqual(cb, reparsed) {
		t.Fatalf("marshal round trip mismatch:\n%#v\n%#v", cb, reparsed)
	}
}
