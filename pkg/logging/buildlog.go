package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BuildLog captures build-tool output in daily files named
// cargo-YYYY-MM-DD.log, keeping the terminal free for progress lines.
type BuildLog struct {
	dir     string
	file    *os.File
	path    string
	mu      sync.Mutex
	lastDay string
	now     func() time.Time
}

// NewBuildLog opens today's build log in dir.
func NewBuildLog(dir string) (*BuildLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create build log dir: %w", err)
	}

	l := &BuildLog{dir: dir, now: time.Now}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rotateLocked(); err != nil {
		return nil, err
	}
	return l, nil
}

// Write appends raw tool output. It satisfies io.Writer so it can be handed
// to an invoker as stdout and stderr.
func (l *BuildLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureDayLocked(); err != nil {
		return 0, err
	}
	if l.file == nil {
		return len(p), nil
	}
	return l.file.Write(p)
}

// Begin writes a header separating the output of one case.
func (l *BuildLog) Begin(caseIndex int, label string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureDayLocked(); err != nil {
		return err
	}
	if l.file == nil {
		return nil
	}

	header := fmt.Sprintf("\n=== [%s] case=%d %s ===\n",
		l.now().Format("15:04:05"), caseIndex, label)
	_, err := l.file.WriteString(header)
	return err
}

// Path returns the current log file path.
func (l *BuildLog) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Close closes the log file.
func (l *BuildLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *BuildLog) ensureDayLocked() error {
	if l.now().Format("2006-01-02") != l.lastDay {
		return l.rotateLocked()
	}
	return nil
}

func (l *BuildLog) rotateLocked() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	today := l.now().Format("2006-01-02")
	l.lastDay = today
	l.path = filepath.Join(l.dir, "cargo-"+today+".log")

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open build log: %w", err)
	}
	l.file = file
	return nil
}
