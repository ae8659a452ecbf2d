package predict

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Record is the aggregated prediction for one image.
type Record struct {
	SampleID      int
	Image         string
	Key           string
	Probabilities []float64
	Predicted     int
}

// Writer appends prediction rows to a headerless image,key,probs CSV. Every
// row is flushed as it is written so a failed run keeps what it produced.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	csv *csv.Writer
}

// Create opens path for writing, creating parent directories.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	return &Writer{f: f, csv: csv.NewWriter(f)}, nil
}

// Write appends rec and flushes it.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Fields are written raw unless they contain a comma, quote or newline,
	// in which case csv quotes them so the row still has three columns.
	if err := w.csv.Write([]string{rec.Image, rec.Key, FormatProbabilities(rec.Probabilities)}); err != nil {
		return fmt.Errorf("writing row for %s: %w", rec.Image, err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flushing row for %s: %w", rec.Image, err)
	}
	return nil
}

// Close flushes and closes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.f.Close()
	w.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
