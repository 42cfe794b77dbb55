package codebook

import (
	"errors"
	"fmt"
	"time"
)

// Attribute types supported by the codebook.
const (
	TypeCategorical = "categorical"
	TypeFreetext    = "freetext"
)

// CreatedAtLayout is the timestamp format used in codebook files.
const CreatedAtLayout = "02/01/2006 15:04:05"

var (
	ErrDuplicateAttribute = errors.New("attribute already exists")
	ErrDuplicateCategory  = errors.New("category already exists")
	ErrAttributeNotFound  = errors.New("attribute not found")
	ErrEmptyField         = errors.New("required field is empty")
)

// Category is one allowed value of a categorical attribute.
type Category struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Attribute is one entry of the codebook. For freetext attributes the
// Categories list is unused and stays empty.
type Attribute struct {
	Attribute        string     `json:"attribute"`
	Description      string     `json:"description"`
	Type             string     `json:"type"`
	InstructionStart string     `json:"instruction_start"`
	InstructionEnd   string     `json:"instruction_end"`
	Categories       []Category `json:"categories"`
}

// Codebook is the annotation schema for one dataset.
type Codebook struct {
	CreatedAt string      `json:"created_at"`
	Dataset   string      `json:"dataset"`
	Codes     []Attribute `json:"codes"`
}

// New creates an empty codebook for the given dataset name.
func New(dataset string) *Codebook {
	return &Codebook{
		CreatedAt: time.Now().Format(CreatedAtLayout),
		Dataset:   dataset,
		Codes:     []Attribute{},
	}
}

// AddAttribute appends a new attribute. Attribute names are unique within a
// codebook (case-sensitive exact match); a duplicate or empty name leaves the
// codebook unchanged.
func (cb *Codebook) AddAttribute(name, description, attrType, instructionStart, instructionEnd string) error {
	if name == "" {
		return fmt.Errorf("attribute name: %w", ErrEmptyField)
	}
	if attrType != TypeCategorical && attrType != TypeFreetext {
		return fmt.Errorf("unknown attribute type %q", attrType)
	}
	for _, code := range cb.Codes {
		if code.Attribute == name {
			return fmt.Errorf("attribute %q: %w", name, ErrDuplicateAttribute)
		}
	}
	cb.Codes = append(cb.Codes, Attribute{
		Attribute:        name,
		Description:      description,
		Type:             attrType,
		InstructionStart: instructionStart,
		InstructionEnd:   instructionEnd,
		Categories:       []Category{},
	})
	return nil
}

// AddCategory appends a category to an existing attribute. Category names are
// unique within their attribute; attribute name, category name and description
// are all required.
func (cb *Codebook) AddCategory(attributeName, categoryName, description, icon string) error {
	if attributeName == "" || categoryName == "" || description == "" {
		return fmt.Errorf("attribute name, category name and description: %w", ErrEmptyField)
	}
	for i := range cb.Codes {
		if cb.Codes[i].Attribute != attributeName {
			continue
		}
		for _, cat := range cb.Codes[i].Categories {
			if cat.Category == categoryName {
				return fmt.Errorf("category %q: %w", categoryName, ErrDuplicateCategory)
			}
		}
		cb.Codes[i].Categories = append(cb.Codes[i].Categories, Category{
			Category:    categoryName,
			Description: description,
			Icon:        icon,
		})
		return nil
	}
	return fmt.Errorf("attribute %q: %w", attributeName, ErrAttributeNotFound)
}

// RemoveAttribute deletes an attribute by name. Callers persisting the
// codebook rewrite the whole file afterwards.
func (cb *Codebook) RemoveAttribute(name string) error {
	for i := range cb.Codes {
		if cb.Codes[i].Attribute == name {
			cb.Codes = append(cb.Codes[:i], cb.Codes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("attribute %q: %w", name, ErrAttributeNotFound)
}

// GetAttribute returns the attribute with the given name, or nil.
func (cb *Codebook) GetAttribute(name string) *Attribute {
	for i := range cb.Codes {
		if cb.Codes[i].Attribute == name {
			return &cb.Codes[i]
		}
	}
	return nil
}

// ListAttributeNames returns attribute names in stored order.
func (cb *Codebook) ListAttributeNames() []string {
	names := make([]string, 0, len(cb.Codes))
	for _, code := range cb.Codes {
		names = append(names, code.Attribute)
	}
	return names
}

// GetCategoryNames returns the category names of an attribute in stored order.
func (cb *Codebook) GetCategoryNames(attributeName string) []string {
	attr := cb.GetAttribute(attributeName)
	if attr == nil {
		return nil
	}
	names := make([]string, 0, len(attr.Categories))
	for _, cat := range attr.Categories {
		names = append(names, cat.Category)
	}
	return names
}
