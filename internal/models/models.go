package models

import "time"

// Row is one record of the working dataset. Ids are contiguous, 1-based and
// assigned at load time; the source text is immutable once loaded. Cells
// holds the dynamically-added annotation columns (autofill_* and user_*);
// a missing key is a null cell.
type Row struct {
	ID         int               `json:"id"`
	Text       string            `json:"text"`
	IsReviewed bool              `json:"is_reviewed"`
	Cells      map[string]string `json:"cells"`
}

// Job tracks one asynchronous auto-fill batch.
type Job struct {
	ID             string     `json:"id"`
	Attribute      string     `json:"attribute"`
	Status         string     `json:"status"` // "pending", "processing", "completed", "failed"
	TotalCount     int        `json:"total_count"`
	ProcessedCount int        `json:"processed_count"`
	FailedCount    int        `json:"failed_count"`
	StatusMessage  string     `json:"status_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// Job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// DatasetRequest loads a new working dataset.
type DatasetRequest struct {
	Name  string   `json:"name"`
	Texts []string `json:"texts" binding:"required,min=1"`
}

// AttributeRequest adds a codebook attribute.
type AttributeRequest struct {
	Name             string `json:"name" binding:"required"`
	Description      string `json:"description"`
	Type             string `json:"type" binding:"required"`
	InstructionStart string `json:"instruction_start"`
	InstructionEnd   string `json:"instruction_end"`
}

// CategoryRequest adds a category to an attribute.
type CategoryRequest struct {
	Category    string `json:"category" binding:"required"`
	Description string `json:"description" binding:"required"`
	Icon        string `json:"icon"`
}

// ReviewRequest records a human annotation for one row.
type ReviewRequest struct {
	Attribute string `json:"attribute" binding:"required"`
	Value     string `json:"value" binding:"required"`
}

// AutofillRequest starts a batch annotation job.
type AutofillRequest struct {
	Attribute string `json:"attribute" binding:"required"`
}
