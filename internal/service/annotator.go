package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"fannotate/internal/agreement"
	"fannotate/internal/autofill"
	"fannotate/internal/codebook"
	"fannotate/internal/llm"
	"fannotate/internal/models"
	"fannotate/internal/prompt"
	"fannotate/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStorage marks repository failures, so the HTTP layer reports them as
// server errors instead of bad requests.
var ErrStorage = errors.New("storage failure")

// Annotator owns one annotation project: the codebook, the working rows and
// the current engine configuration. The configuration is replaced wholesale
// by the settings surface and read again for every completion call, so the
// last write before a row's call wins.
type Annotator struct {
	codebook   *codebook.Store
	repo       *repository.RowRepository
	dispatcher *llm.Dispatcher
	logger     *zap.Logger

	mu  sync.RWMutex
	cfg llm.EngineConfig
}

// NewAnnotator creates the annotation session.
func NewAnnotator(cb *codebook.Store, repo *repository.RowRepository, dispatcher *llm.Dispatcher, cfg llm.EngineConfig, logger *zap.Logger) *Annotator {
	return &Annotator{
		codebook:   cb,
		repo:       repo,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// ApplySettings replaces the engine configuration.
func (a *Annotator) ApplySettings(cfg llm.EngineConfig) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.logger.Info("LLM settings applied",
		zap.String("framework", cfg.Framework),
		zap.String("model", cfg.Model))
}

// Settings returns the current engine configuration.
func (a *Annotator) Settings() llm.EngineConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Codebook loads the current codebook.
func (a *Annotator) Codebook() (*codebook.Codebook, error) {
	if !a.codebook.Exists() {
		return codebook.New(""), nil
	}
	return a.codebook.Load()
}

// CodebookStore exposes the underlying store for codebook mutations.
func (a *Annotator) CodebookStore() *codebook.Store {
	return a.codebook
}

// LoadDataset replaces the working rows with the given texts and creates an
// empty codebook for the dataset if none exists yet.
func (a *Annotator) LoadDataset(name string, texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("dataset has no rows")
	}
	if err := a.repo.LoadDataset(texts); err != nil {
		return err
	}
	if !a.codebook.Exists() {
		if _, err := a.codebook.Create(name); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns the working dataset.
func (a *Annotator) Rows() ([]*models.Row, error) {
	return a.repo.Rows()
}

// Row returns one row by id.
func (a *Annotator) Row(id int) (*models.Row, error) {
	return a.repo.Row(id)
}

// Review records a human annotation: the value goes into the attribute's
// user_* column and the row is flagged as reviewed.
func (a *Annotator) Review(rowID int, attributeName, value string) error {
	cb, err := a.Codebook()
	if err != nil {
		return err
	}
	if cb.GetAttribute(attributeName) == nil {
		return fmt.Errorf("attribute %q: %w", attributeName, codebook.ErrAttributeNotFound)
	}
	if err := a.repo.SetCell(rowID, prompt.UserColumn(attributeName), value); err != nil {
		return err
	}
	return a.repo.SetReviewed(rowID, true)
}

// Autofill starts a batch annotation job for one attribute and returns the
// job id. Setup failures (unknown attribute, categorical attribute without
// categories, empty dataset) are reported before any job is created.
func (a *Annotator) Autofill(attributeName string) (string, error) {
	cb, err := a.Codebook()
	if err != nil {
		return "", err
	}
	attr := cb.GetAttribute(attributeName)
	if attr == nil {
		return "", fmt.Errorf("attribute %q: %w", attributeName, codebook.ErrAttributeNotFound)
	}
	if attr.Type == codebook.TypeCategorical && len(attr.Categories) == 0 {
		return "", fmt.Errorf("no valid values found for attribute %q", attributeName)
	}

	rows, err := a.repo.Rows()
	if err != nil {
		return "", fmt.Errorf("failed to load rows: %w: %w", ErrStorage, err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("no dataset loaded")
	}

	job := &models.Job{
		ID:         uuid.New().String(),
		Attribute:  attr.Attribute,
		Status:     models.JobPending,
		TotalCount: len(rows),
		CreatedAt:  time.Now(),
	}
	if err := a.repo.CreateJob(job); err != nil {
		return "", fmt.Errorf("failed to create job: %w: %w", ErrStorage, err)
	}

	batch := make([]autofill.Row, len(rows))
	for i, row := range rows {
		batch[i] = autofill.Row{ID: row.ID, Text: row.Text}
	}

	go a.processAutofillJob(job, *attr, batch)

	return job.ID, nil
}

// liveCompleter re-reads the session configuration on every call, so settings
// applied mid-batch take effect from the next row onward.
type liveCompleter struct {
	a *Annotator
}

func (c liveCompleter) Complete(ctx context.Context, _ llm.EngineConfig, promptText string, allowedValues []string) string {
	return c.a.dispatcher.Complete(ctx, c.a.Settings(), promptText, allowedValues)
}

func (a *Annotator) processAutofillJob(job *models.Job, attr codebook.Attribute, batch []autofill.Row) {
	ctx := context.Background()

	job.Status = models.JobProcessing
	if err := a.repo.UpdateJob(job); err != nil {
		a.logger.Error("Failed to update job", zap.String("job_id", job.ID), zap.Error(err))
	}

	result, err := autofill.Run(ctx, liveCompleter{a}, batch, attr, a.Settings())
	if err != nil {
		a.logger.Error("Auto-fill batch failed",
			zap.String("job_id", job.ID),
			zap.String("attribute", attr.Attribute),
			zap.Error(err))
		job.Status = models.JobFailed
		job.ErrorMessage = err.Error()
		a.finishJob(job)
		return
	}

	if err := a.repo.SetColumn(result.OutputColumn, result.Values); err != nil {
		a.logger.Error("Failed to store auto-fill results",
			zap.String("job_id", job.ID),
			zap.Error(err))
		job.Status = models.JobFailed
		job.ErrorMessage = err.Error()
		a.finishJob(job)
		return
	}

	job.Status = models.JobCompleted
	job.FailedCount = result.FailedCount()
	job.ProcessedCount = len(result.Values) - job.FailedCount
	job.StatusMessage = fmt.Sprintf("%s\n\nAuto-fill completed. Results stored in column: %s",
		result.Status, result.OutputColumn)
	a.finishJob(job)

	a.logger.Info("Auto-fill job completed",
		zap.String("job_id", job.ID),
		zap.String("attribute", attr.Attribute),
		zap.String("column", result.OutputColumn),
		zap.Int("processed", job.ProcessedCount),
		zap.Int("failed", job.FailedCount))
}

func (a *Annotator) finishJob(job *models.Job) {
	completedAt := time.Now()
	job.CompletedAt = &completedAt
	if err := a.repo.UpdateJob(job); err != nil {
		a.logger.Error("Failed to update job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// JobStatus returns one job's progress.
func (a *Annotator) JobStatus(jobID string) (*models.Job, error) {
	return a.repo.GetJob(jobID)
}

// Agreement compares the autofill_* and user_* columns of one attribute over
// the rows where both are present.
func (a *Annotator) Agreement(ctx context.Context, attributeName string) (*agreement.Metrics, error) {
	cb, err := a.Codebook()
	if err != nil {
		return nil, err
	}
	attr := cb.GetAttribute(attributeName)
	if attr == nil {
		return nil, fmt.Errorf("attribute %q: %w", attributeName, codebook.ErrAttributeNotFound)
	}

	rows, err := a.repo.Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to load rows: %w: %w", ErrStorage, err)
	}

	autoCol := prompt.AutofillColumn(attributeName)
	userCol := prompt.UserColumn(attributeName)
	var pairs []agreement.Pair
	for _, row := range rows {
		auto, hasAuto := row.Cells[autoCol]
		user, hasUser := row.Cells[userCol]
		if hasAuto && hasUser {
			pairs = append(pairs, agreement.Pair{
				RowID: row.ID,
				Text:  row.Text,
				Human: user,
				Model: auto,
			})
		}
	}

	var embedder agreement.Embedder
	if attr.Type == codebook.TypeFreetext {
		embedder = llm.NewOpenAIEmbedder(a.Settings(), a.logger)
	}
	engine := agreement.NewEngine(embedder, a.logger)
	return engine.Compare(ctx, *attr, pairs), nil
}

// ExportCSV writes the working table: the fixed columns followed by the
// annotation columns in sorted order, empty string for null cells.
func (a *Annotator) ExportCSV(w io.Writer) error {
	rows, err := a.repo.Rows()
	if err != nil {
		return err
	}
	columns, err := a.repo.Columns()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := append([]string{"ID", "text", "is_reviewed"}, columns...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{strconv.Itoa(row.ID), row.Text, strconv.FormatBool(row.IsReviewed)}
		for _, column := range columns {
			record = append(record, row.Cells[column])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}
