package codebook

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Store persists a codebook as a JSON file. Every mutating operation loads
// the current file, applies the change and writes the whole file back through
// a temp-file rename, so readers never observe a partial update.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a store for the given file path. The parent directory is
// created if missing.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create codebook directory: %w", err)
	}
	return &Store{path: path, logger: logger}, nil
}

// Path returns the codebook file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a codebook file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Create writes a new empty codebook for the dataset, replacing any existing
// file. A timestamped backup of the old file is kept.
func (s *Store) Create(dataset string) (*Codebook, error) {
	if err := s.backup(); err != nil {
		return nil, err
	}
	cb := New(dataset)
	if err := s.save(cb); err != nil {
		return nil, err
	}
	s.logger.Info("New codebook created", zap.String("dataset", dataset))
	return cb, nil
}

// Load reads and parses the codebook file.
func (s *Store) Load() (*Codebook, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read codebook: %w", err)
	}
	cb, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cb, nil
}

// Parse decodes codebook JSON and checks the required keys, mirroring the
// validation applied to uploaded codebook files.
func Parse(data []byte) (*Codebook, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON format in codebook: %w", err)
	}
	for _, required := range []string{"created_at", "codes"} {
		if _, ok := probe[required]; !ok {
			return nil, fmt.Errorf("invalid codebook format: missing %q", required)
		}
	}
	var cb Codebook
	if err := json.Unmarshal(data, &cb); err != nil {
		return nil, fmt.Errorf("invalid codebook format: %w", err)
	}
	if cb.Codes == nil {
		cb.Codes = []Attribute{}
	}
	return &cb, nil
}

// Replace validates an uploaded codebook and installs it as the current file,
// keeping a timestamped backup of the previous one.
func (s *Store) Replace(r io.Reader) (*Codebook, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded codebook: %w", err)
	}
	cb, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := s.backup(); err != nil {
		return nil, err
	}
	if err := s.save(cb); err != nil {
		return nil, err
	}
	s.logger.Info("Codebook replaced", zap.Int("attributes", len(cb.Codes)))
	return cb, nil
}

// AddAttribute loads, mutates and atomically rewrites the codebook. An empty
// dataset codebook is created first if none exists.
func (s *Store) AddAttribute(name, description, attrType, instructionStart, instructionEnd string) (*Codebook, error) {
	cb, err := s.loadOrCreate()
	if err != nil {
		return nil, err
	}
	if err := cb.AddAttribute(name, description, attrType, instructionStart, instructionEnd); err != nil {
		return nil, err
	}
	if err := s.save(cb); err != nil {
		return nil, err
	}
	s.logger.Info("Attribute added", zap.String("attribute", name), zap.String("type", attrType))
	return cb, nil
}

// AddCategory loads, mutates and atomically rewrites the codebook.
func (s *Store) AddCategory(attributeName, categoryName, description, icon string) (*Codebook, error) {
	cb, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := cb.AddCategory(attributeName, categoryName, description, icon); err != nil {
		return nil, err
	}
	if err := s.save(cb); err != nil {
		return nil, err
	}
	s.logger.Info("Category added",
		zap.String("attribute", attributeName),
		zap.String("category", categoryName))
	return cb, nil
}

// RemoveAttribute deletes an attribute and rewrites the whole file. The
// previous file is kept as a timestamped backup.
func (s *Store) RemoveAttribute(name string) (*Codebook, error) {
	cb, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := cb.RemoveAttribute(name); err != nil {
		return nil, err
	}
	if err := s.backup(); err != nil {
		return nil, err
	}
	if err := s.save(cb); err != nil {
		return nil, err
	}
	s.logger.Info("Attribute removed", zap.String("attribute", name))
	return cb, nil
}

func (s *Store) loadOrCreate() (*Codebook, error) {
	if !s.Exists() {
		return New(""), nil
	}
	return s.Load()
}

func (s *Store) save(cb *Codebook) error {
	data, err := json.MarshalIndent(cb, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode codebook: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write codebook: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace codebook: %w", err)
	}
	return nil
}

func (s *Store) backup() error {
	if !s.Exists() {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read codebook for backup: %w", err)
	}
	stamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(filepath.Dir(s.path), fmt.Sprintf("backup_%s_%s", stamp, filepath.Base(s.path)))
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write codebook backup: %w", err)
	}
	return nil
}
