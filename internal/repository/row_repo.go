package repository

import (
	"database/sql"
	"fmt"
	"sort"

	"fannotate/internal/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// RowRepository stores the working dataset: the immutable source rows plus a
// cell table holding the dynamically-added annotation columns. Mutation is
// always "set cell (row, column)", never a whole-table rewrite.
type RowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRowRepository opens (and migrates) the sqlite database at dbPath.
func NewRowRepository(dbPath string, logger *zap.Logger) (*RowRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &RowRepository{db: db, logger: logger}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Row repository initialized", zap.String("db_path", dbPath))
	return repo, nil
}

func (r *RowRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rows (
		id INTEGER PRIMARY KEY,
		text TEXT NOT NULL,
		is_reviewed BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS cells (
		row_id INTEGER NOT NULL REFERENCES rows(id) ON DELETE CASCADE,
		column_name TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (row_id, column_name)
	);

	CREATE INDEX IF NOT EXISTS idx_cells_column ON cells(column_name);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		attribute TEXT NOT NULL,
		status TEXT NOT NULL,
		total_count INTEGER NOT NULL,
		processed_count INTEGER DEFAULT 0,
		failed_count INTEGER DEFAULT 0,
		status_message TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		completed_at DATETIME,
		error_message TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_job_status ON jobs(status);
	`
	_, err := r.db.Exec(schema)
	return err
}

// LoadDataset replaces the working dataset with the given texts, assigning
// contiguous 1-based ids. All existing rows and cells are dropped in the same
// transaction.
func (r *RowRepository) LoadDataset(texts []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cells"); err != nil {
		return fmt.Errorf("failed to clear cells: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM rows"); err != nil {
		return fmt.Errorf("failed to clear rows: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO rows (id, text, is_reviewed) VALUES (?, ?, 0)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, text := range texts {
		if _, err := stmt.Exec(i+1, text); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}

	r.logger.Info("Dataset loaded", zap.Int("rows", len(texts)))
	return nil
}

// Rows returns all rows in id order with their annotation cells attached.
func (r *RowRepository) Rows() ([]*models.Row, error) {
	rows, err := r.db.Query("SELECT id, text, is_reviewed FROM rows ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var result []*models.Row
	byID := make(map[int]*models.Row)
	for rows.Next() {
		row := &models.Row{Cells: make(map[string]string)}
		if err := rows.Scan(&row.ID, &row.Text, &row.IsReviewed); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, row)
		byID[row.ID] = row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	cells, err := r.db.Query("SELECT row_id, column_name, value FROM cells")
	if err != nil {
		return nil, fmt.Errorf("failed to query cells: %w", err)
	}
	defer cells.Close()

	for cells.Next() {
		var rowID int
		var column, value string
		if err := cells.Scan(&rowID, &column, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		if row, ok := byID[rowID]; ok {
			row.Cells[column] = value
		}
	}
	return result, cells.Err()
}

// Row returns a single row with its cells, or an error if it does not exist.
func (r *RowRepository) Row(id int) (*models.Row, error) {
	row := &models.Row{Cells: make(map[string]string)}
	err := r.db.QueryRow("SELECT id, text, is_reviewed FROM rows WHERE id = ?", id).
		Scan(&row.ID, &row.Text, &row.IsReviewed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("row %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get row: %w", err)
	}

	cells, err := r.db.Query("SELECT column_name, value FROM cells WHERE row_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query cells: %w", err)
	}
	defer cells.Close()
	for cells.Next() {
		var column, value string
		if err := cells.Scan(&column, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		row.Cells[column] = value
	}
	return row, cells.Err()
}

// SetCell writes one annotation cell, overwriting any previous value.
func (r *RowRepository) SetCell(rowID int, column, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO cells (row_id, column_name, value) VALUES (?, ?, ?)
		ON CONFLICT (row_id, column_name) DO UPDATE SET value = excluded.value`,
		rowID, column, value)
	if err != nil {
		return fmt.Errorf("failed to set cell: %w", err)
	}
	return nil
}

// SetColumn writes a whole column keyed by row id in one transaction, so a
// finished batch becomes visible atomically.
func (r *RowRepository) SetColumn(column string, values map[int]string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO cells (row_id, column_name, value) VALUES (?, ?, ?)
		ON CONFLICT (row_id, column_name) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("failed to prepare cell upsert: %w", err)
	}
	defer stmt.Close()

	for rowID, value := range values {
		if _, err := stmt.Exec(rowID, column, value); err != nil {
			return fmt.Errorf("failed to set cell for row %d: %w", rowID, err)
		}
	}
	return tx.Commit()
}

// SetReviewed flags a row as human-reviewed.
func (r *RowRepository) SetReviewed(rowID int, reviewed bool) error {
	result, err := r.db.Exec("UPDATE rows SET is_reviewed = ? WHERE id = ?", reviewed, rowID)
	if err != nil {
		return fmt.Errorf("failed to update row: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("row %d not found", rowID)
	}
	return nil
}

// Columns lists the annotation column names present in the dataset, sorted.
func (r *RowRepository) Columns() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT column_name FROM cells")
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns, rows.Err()
}

// CreateJob records a new auto-fill job.
func (r *RowRepository) CreateJob(job *models.Job) error {
	_, err := r.db.Exec(`
		INSERT INTO jobs (id, attribute, status, total_count, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.Attribute, job.Status, job.TotalCount, job.CreatedAt)
	return err
}

// UpdateJob updates job progress.
func (r *RowRepository) UpdateJob(job *models.Job) error {
	_, err := r.db.Exec(`
		UPDATE jobs
		SET status = ?, processed_count = ?, failed_count = ?, status_message = ?,
		    completed_at = ?, error_message = ?
		WHERE id = ?`,
		job.Status, job.ProcessedCount, job.FailedCount, job.StatusMessage,
		job.CompletedAt, job.ErrorMessage, job.ID)
	return err
}

// GetJob retrieves a job by id.
func (r *RowRepository) GetJob(jobID string) (*models.Job, error) {
	job := &models.Job{}
	err := r.db.QueryRow(`
		SELECT id, attribute, status, total_count, processed_count, failed_count,
		       status_message, created_at, completed_at, error_message
		FROM jobs WHERE id = ?`, jobID).
		Scan(&job.ID, &job.Attribute, &job.Status, &job.TotalCount, &job.ProcessedCount,
			&job.FailedCount, &job.StatusMessage, &job.CreatedAt, &job.CompletedAt, &job.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Close closes the database connection.
func (r *RowRepository) Close() error {
	return r.db.Close()
}
