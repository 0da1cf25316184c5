// Package recorder keeps a JSONL journal of what each reconciliation run
// changed, one file per run.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	MaxRotatedFiles = 20
	JournalDir      = "data/runs"
)

// Event is one journal line.
type Event struct {
	Timestamp time.Time       `json:"ts"`
	Type      string          `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Recorder writes run journals and rotates old ones away.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
	runID    string
	maxFiles int
}

// NewRecorder creates a recorder writing under basePath.
// It ensures the directory exists.
func NewRecorder(basePath string) (*Recorder, error) {
	if basePath == "" {
		basePath = JournalDir
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{
		basePath: basePath,
		maxFiles: MaxRotatedFiles,
	}, nil
}

// Start opens the journal for runID, rotating old files so only the newest
// MaxRotatedFiles remain.
func (r *Recorder) Start(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked(runID)
}

func (r *Recorder) startLocked(runID string) error {
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
		r.encoder = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate journals: %w", err)
	}

	filename := fmt.Sprintf("run_%s_%d.jsonl", sanitize(runID), time.Now().UnixMilli())
	f, err := os.Create(filepath.Join(r.basePath, filename))
	if err != nil {
		return err
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	r.runID = runID
	return nil
}

// Log appends an event. An event for a run other than the current one starts
// that run's journal first.
func (r *Recorder) Log(eventType, runID string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil || (runID != "" && runID != r.runID) {
		if err := r.startLocked(runID); err != nil {
			return
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	_ = r.encoder.Encode(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		RunID:     runID,
		Data:      raw,
	})
}

// Path returns the journal currently being written, or "".
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return ""
	}
	return r.file.Name()
}

type journalFile struct {
	Name string
	Time time.Time
}

func (r *Recorder) journals() ([]journalFile, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, err
	}

	var files []journalFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, journalFile{e.Name(), info.ModTime()})
	}

	// Newest first
	sort.Slice(files, func(i, j int) bool {
		if files[i].Time.Equal(files[j].Time) {
			return files[i].Name > files[j].Name
		}
		return files[i].Time.After(files[j].Time)
	})
	return files, nil
}

// rotate keeps room for one more journal within maxFiles.
func (r *Recorder) rotate() error {
	files, err := r.journals()
	if err != nil {
		return err
	}
	keep := r.maxFiles - 1
	if keep < 0 {
		keep = 0
	}
	for i := keep; i < len(files); i++ {
		_ = os.Remove(filepath.Join(r.basePath, files[i].Name))
	}
	return nil
}

// Latest reads back the newest journal.
func (r *Recorder) Latest() ([]Event, error) {
	r.mu.Lock()
	if r.file != nil {
		_ = r.file.Sync()
	}
	r.mu.Unlock()

	files, err := r.journals()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return ReadJournal(filepath.Join(r.basePath, files[0].Name))
}

// ReadJournal parses a journal file. Malformed lines are skipped.
func ReadJournal(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}
		events = append(events, evt)
	}
	return events, scanner.Err()
}

// Close finishes the current journal.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		r.runID = ""
		return err
	}
	return nil
}

func sanitize(id string) string {
	if id == "" {
		return "adhoc"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
