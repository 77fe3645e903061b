package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewJournal(t *testing.T) {
	tests := []struct {
		name    string
		baseDir string
		sweepID string
	}{
		{"existing directory", t.TempDir(), "01HZX"},
		{"creates nested directory", filepath.Join(t.TempDir(), "nested", "data"), "01HZY"},
		{"empty sweep ID", t.TempDir(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			journal, err := NewJournal(tt.baseDir, tt.sweepID)
			if err != nil {
				t.Fatalf("NewJournal() error = %v", err)
			}
			defer journal.Close()

			if journal.sweepID != tt.sweepID {
				t.Errorf("sweepID = %v, want %v", journal.sweepID, tt.sweepID)
			}
			if journal.minLevel != LevelInfo {
				t.Errorf("minLevel = %v, want %v", journal.minLevel, LevelInfo)
			}
			for _, name := range []string{EventsFile, ErrorsFile} {
				if _, err := os.Stat(filepath.Join(tt.baseDir, name)); err != nil {
					t.Errorf("%s not created: %v", name, err)
				}
			}
		})
	}
}

func TestNewJournalInvalidDirectory(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "file-not-dir")
	if err := os.WriteFile(filePath, []byte("x"), 0644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := NewJournal(filePath, "s"); err == nil {
		t.Fatal("expected error when baseDir is a file")
	}
}

func TestJournalExperimentEvent(t *testing.T) {
	baseDir := t.TempDir()
	journal, err := NewJournal(baseDir, "sweep-1")
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	defer journal.Close()

	before := time.Now()
	err = journal.Experiment(LevelInfo, EventExperimentCompleted, 3, "opt-level=2", map[string]any{"build_ns": 12})
	if err != nil {
		t.Fatalf("Experiment() failed: %v", err)
	}

	events, err := ReadRecentEvents(filepath.Join(baseDir, EventsFile), 10)
	if err != nil {
		t.Fatalf("ReadRecentEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	got := events[0]
	if got.EventType != EventExperimentCompleted {
		t.Errorf("EventType = %v", got.EventType)
	}
	if got.Category != CategoryExperiment {
		t.Errorf("Category = %v", got.Category)
	}
	if got.Case == nil || *got.Case != 3 {
		t.Errorf("Case = %v, want 3", got.Case)
	}
	if got.Label != "opt-level=2" {
		t.Errorf("Label = %q", got.Label)
	}
	if got.SweepID != "sweep-1" {
		t.Errorf("SweepID = %q, want sweep-1", got.SweepID)
	}
	if got.Timestamp.Before(before.Add(-time.Second)) {
		t.Errorf("Timestamp %v not set", got.Timestamp)
	}
}

func TestJournalErrorsGoToBothFiles(t *testing.T) {
	baseDir := t.TempDir()
	journal, err := NewJournal(baseDir, "sweep-1")
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	defer journal.Close()

	if err := journal.Info(CategorySweep, EventSweepStarted, "starting", nil); err != nil {
		t.Fatal(err)
	}
	if err := journal.Error(CategoryExperiment, EventExperimentFailed, "build step failed", nil); err != nil {
		t.Fatal(err)
	}

	all, err := ReadRecentEvents(filepath.Join(baseDir, EventsFile), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("events file has %d entries, want 2", len(all))
	}

	errs, err := ReadRecentEvents(filepath.Join(baseDir, ErrorsFile), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 || errs[0].EventType != EventExperimentFailed {
		t.Errorf("errors file = %+v, want only the failure", errs)
	}
}

func TestJournalMinLevel(t *testing.T) {
	baseDir := t.TempDir()
	journal, err := NewJournal(baseDir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	journal.SetMinLevel(LevelWarn)
	_ = journal.Info(CategorySweep, EventSweepStarted, "", nil)
	_ = journal.Log(Event{Level: LevelDebug, Category: CategoryState, EventType: EventCheckpoint})
	_ = journal.Log(Event{Level: LevelWarn, Category: CategoryState, EventType: "state.drift"})

	events, err := ReadRecentEvents(filepath.Join(baseDir, EventsFile), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].EventType != "state.drift" {
		t.Errorf("events = %+v, want only the warning", events)
	}
}

func TestNilJournalDiscards(t *testing.T) {
	var journal *Journal
	if err := journal.Info(CategorySweep, EventSweepStarted, "", nil); err != nil {
		t.Errorf("nil journal Log returned %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Errorf("nil journal Close returned %v", err)
	}
}

func TestReadRecentEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), EventsFile)
	lines := []string{
		`{"type":"a","level":"info"}`,
		`not json`,
		`{"type":"b","level":"info"}`,
		`{"type":"c","level":"info"}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	events, err := ReadRecentEvents(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].EventType != "b" || events[1].EventType != "c" {
		t.Errorf("events = %+v, want b and c", events)
	}

	if _, err := ReadRecentEvents(filepath.Join(t.TempDir(), "missing.jsonl"), 1); err == nil {
		t.Error("expected error for missing journal")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsole(&buf, "sweep", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("case finished", "case", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line leaked: %s", out)
	}
	if !strings.Contains(out, "component=sweep") || !strings.Contains(out, "case=2") {
		t.Errorf("unexpected console output: %s", out)
	}
}

func TestBuildLog(t *testing.T) {
	dir := t.TempDir()
	log, err := NewBuildLog(dir)
	if err != nil {
		t.Fatalf("NewBuildLog failed: %v", err)
	}
	defer log.Close()

	if err := log.Begin(1, "opt-level=0"); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Write([]byte("   Compiling demo v0.1.0\n")); err != nil {
		t.Fatal(err)
	}
	log.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "cargo-*.log"))
	if len(files) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(files))
	}
	content, _ := os.ReadFile(files[0])
	if !strings.Contains(string(content), "case=1 opt-level=0 ===") {
		t.Errorf("missing header: %s", content)
	}
	if !strings.Contains(string(content), "Compiling demo") {
		t.Errorf("missing output: %s", content)
	}
}

func TestBuildLogRotatesDaily(t *testing.T) {
	dir := t.TempDir()
	log, err := NewBuildLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	first := log.Path()
	log.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if _, err := log.Write([]byte("later\n")); err != nil {
		t.Fatal(err)
	}
	if log.Path() == first {
		t.Errorf("expected rotation away from %s", first)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "cargo-*.log"))
	if len(files) != 2 {
		t.Errorf("expected 2 log files, got %d", len(files))
	}
}
