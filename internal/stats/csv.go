package stats

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{
	"timestamp", "generation", "player", "shots", "hits", "kills",
	"collisions", "score", "lifetime", "winner",
}

// CSVWriter keeps the rows of the most recent matches in one CSV file. The
// file is rewritten on every record.
type CSVWriter struct {
	mu      sync.Mutex
	path    string
	history int
}

func NewCSVWriter(path string, history int) *CSVWriter {
	if history <= 0 {
		history = 10
	}
	return &CSVWriter{path: path, history: history}
}

func (w *CSVWriter) Record(_ context.Context, r MatchResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.load()
	if err != nil {
		return err
	}
	stamp := r.FinishedAt.UTC().Format(time.RFC3339)
	gen := strconv.FormatUint(uint64(r.Generation), 10)
	for _, p := range r.Players {
		rows = append(rows, []string{
			stamp, gen, p.Agent,
			strconv.Itoa(p.Shots), strconv.Itoa(p.Hits), strconv.Itoa(p.Kills),
			strconv.Itoa(p.Collisions), strconv.Itoa(p.Score),
			strconv.FormatFloat(p.Survival, 'f', 2, 64),
			strconv.FormatBool(p.Winner),
		})
	}
	return w.save(lastMatches(rows, w.history))
}

// Rows returns the stored rows without the header.
func (w *CSVWriter) Rows() ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load()
}

func (w *CSVWriter) load() ([][]string, error) {
	f, err := os.Open(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open stats csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	header := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stats csv: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(rec) == len(csvHeader) {
			rows = append(rows, rec)
		}
	}
	return rows, nil
}

// save writes through a temp file so a crash never leaves a torn CSV.
func (w *CSVWriter) save(rows [][]string) error {
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("stats dir: %w", err)
		}
	}
	tmp := w.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create stats csv: %w", err)
	}
	cw := csv.NewWriter(f)
	cw.Write(csvHeader)
	cw.WriteAll(rows) // flushes
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write stats csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close stats csv: %w", err)
	}
	return os.Rename(tmp, w.path)
}

// lastMatches keeps the rows of the newest n matches. A match is identified
// by its timestamp and generation columns.
func lastMatches(rows [][]string, n int) [][]string {
	var order []string
	seen := make(map[string]bool)
	for _, row := range rows {
		k := row[0] + "/" + row[1]
		if !seen[k] {
			seen[k] = true
			order = append(order, k)
		}
	}
	if len(order) <= n {
		return rows
	}
	keep := make(map[string]bool, n)
	for _, k := range order[len(order)-n:] {
		keep[k] = true
	}
	out := rows[:0]
	for _, row := range rows {
		if keep[row[0]+"/"+row[1]] {
			out = append(out, row)
		}
	}
	return out
}
