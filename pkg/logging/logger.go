package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the event
type Category string

const (
	CategorySweep      Category = "sweep"
	CategoryExperiment Category = "experiment"
	CategoryState      Category = "state"
)

// Journal file names inside the data directory.
const (
	EventsFile = "bcp-events.jsonl"
	ErrorsFile = "bcp-errors.jsonl"
)

// Event types written by the sweep.
const (
	EventSweepStarted        = "sweep.started"
	EventSweepCompleted      = "sweep.completed"
	EventExperimentSkipped   = "experiment.skipped"
	EventExperimentStarted   = "experiment.started"
	EventExperimentCompleted = "experiment.completed"
	EventExperimentFailed    = "experiment.failed"
	EventCheckpoint          = "state.checkpoint"
)

// Event represents a structured journal entry
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Category  Category       `json:"category"`
	EventType string         `json:"type"`
	SweepID   string         `json:"sweep_id,omitempty"`
	Case      *int           `json:"case,omitempty"`
	Label     string         `json:"label,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Journal appends sweep events to JSONL files. Error-level events are also
// copied to a separate errors file.
type Journal struct {
	sweepID    string
	baseDir    string
	eventsFile *os.File
	errorFile  *os.File
	mu         sync.Mutex
	minLevel   Level
}

// NewJournal opens (or creates) the journal files in baseDir.
func NewJournal(baseDir, sweepID string) (*Journal, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	eventsFile, err := os.OpenFile(
		filepath.Join(baseDir, EventsFile),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal: %w", err)
	}

	errorFile, err := os.OpenFile(
		filepath.Join(baseDir, ErrorsFile),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		eventsFile.Close()
		return nil, fmt.Errorf("failed to open error journal: %w", err)
	}

	return &Journal{
		sweepID:    sweepID,
		baseDir:    baseDir,
		eventsFile: eventsFile,
		errorFile:  errorFile,
		minLevel:   LevelInfo,
	}, nil
}

// SetMinLevel sets the minimum level
func (j *Journal) SetMinLevel(level Level) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.minLevel = level
}

// SetSweepID sets the sweep ID stamped on subsequent events
func (j *Journal) SetSweepID(id string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sweepID = id
}

// Log writes an event to the appropriate files. A nil journal discards.
func (j *Journal) Log(event Event) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.SweepID == "" {
		event.SweepID = j.sweepID
	}

	if !j.shouldLog(event.Level) {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	if j.eventsFile != nil {
		if _, err := j.eventsFile.Write(data); err != nil {
			return fmt.Errorf("failed to write to event journal: %w", err)
		}
	}

	if event.Level == LevelError && j.errorFile != nil {
		if _, err := j.errorFile.Write(data); err != nil {
			return fmt.Errorf("failed to write to error journal: %w", err)
		}
	}

	return nil
}

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

func (j *Journal) shouldLog(level Level) bool {
	return levelRank[level] >= levelRank[j.minLevel]
}

// Experiment logs an event about plan case i.
func (j *Journal) Experiment(level Level, eventType string, i int, label string, details map[string]any) error {
	return j.Log(Event{
		Level:     level,
		Category:  CategoryExperiment,
		EventType: eventType,
		Case:      &i,
		Label:     label,
		Details:   details,
	})
}

// Info logs an info event
func (j *Journal) Info(category Category, eventType string, message string, details map[string]any) error {
	return j.Log(Event{
		Level:     LevelInfo,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Error logs an error event
func (j *Journal) Error(category Category, eventType string, message string, details map[string]any) error {
	return j.Log(Event{
		Level:     LevelError,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Close closes the journal files
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error
	if j.eventsFile != nil {
		if err := j.eventsFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if j.errorFile != nil {
		if err := j.errorFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing journal files: %v", errs)
	}
	return nil
}

// ReadRecentEvents returns the last count events of a journal file, oldest
// first. Lines that do not decode are skipped.
func ReadRecentEvents(path string, count int) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		events = append(events, event)
		if count > 0 && len(events) > count {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return events, nil
}
