package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"nimbus/internal/constants"
)

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Logger provides leveled logging with optional file output.
type Logger struct {
	level         string
	mu            sync.Mutex
	file          *os.File // nil = stdout only
	writeToStdout bool
}

// Options configures the logger behavior.
type Options struct {
	Level         string
	WorkDir       string // If set, enables file logging under <WorkDir>/logs
	WriteToStdout bool
}

// NewLogger creates a logger with stdout output only.
func NewLogger(level string) *Logger {
	return NewLoggerWithOptions(Options{Level: level, WriteToStdout: true})
}

// NewLoggerWithOptions creates a logger with full configuration.
func NewLoggerWithOptions(opts Options) *Logger {
	level := opts.Level
	if _, ok := levelOrder[level]; !ok {
		level = LevelDebug
	}

	l := &Logger{level: level, writeToStdout: opts.WriteToStdout}
	if opts.WorkDir != "" {
		if err := l.openFile(opts.WorkDir); err != nil {
			fmt.Fprintf(os.Stderr, "logger: file output disabled: %v\n", err)
		}
	}
	return l
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := levelOrder[level]; ok {
		l.level = level
	}
}

// SetWorkDir enables or changes file logging. Pass empty string to disable.
func (l *Logger) SetWorkDir(workDir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if workDir == "" {
		return nil
	}
	return l.openFile(workDir)
}

// Close releases the log file handle, if any.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func (l *Logger) openFile(workDir string) error {
	dir := filepath.Join(workDir, constants.LogsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, constants.AppName+".log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.file = f
	return nil
}

func (l *Logger) log(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if levelOrder[level] < levelOrder[l.level] {
		return
	}

	line := fmt.Sprintf("[%s] %s %s\n",
		level, time.Now().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))

	if l.writeToStdout {
		fmt.Print(line)
	}
	if l.file != nil {
		l.file.WriteString(line)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }
