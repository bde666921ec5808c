package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finboard/internal/core"
	"finboard/internal/sheets"
)

var _ sheets.ViewExporter = (*Store)(nil)

// Export is one recorded call to ExportView.
type Export struct {
	Title string
	View  core.ViewModel
	Rows  [][]any
}

// Store keeps exports in memory. It backs dry runs and tests.
type Store struct {
	mu      sync.Mutex
	loc     *time.Location
	exports []Export
}

func New(loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{loc: loc}
}

// ExportView records the export and returns a synthetic reference.
func (s *Store) ExportView(_ context.Context, title string, view core.ViewModel) (string, error) {
	rows := sheets.Rows(title, view, s.loc)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports = append(s.exports, Export{Title: title, View: view, Rows: rows})
	return fmt.Sprintf("mem:%d", len(s.exports)), nil
}

// Exports returns a copy of everything exported so far.
func (s *Store) Exports() []Export {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Export(nil), s.exports...)
}
