package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync" // For thread-safe initialization

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes diagnostics to a rotating log file. Nothing ever goes to
// stdout or stderr: while the session holds the terminal in raw mode, any
// stray write would corrupt the display.
type Logger struct {
	logger *log.Logger
}

var (
	globalLogger *Logger
	once         sync.Once
)

// GetLogger returns the singleton instance of Logger. The logFile path is
// honored on first call only; pass "" to use TERMINPUT_LOG_FILE or the
// default under the home directory.
func GetLogger(logFile string) *Logger {
	once.Do(func() {
		path := logFile
		if path == "" {
			path = os.Getenv("TERMINPUT_LOG_FILE")
		}
		if path == "" {
			path = defaultLogPath()
		}
		output := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    15, // megabytes
			MaxBackups: 3,
			MaxAge:     28,   // days
			Compress:   true,
		}
		globalLogger = &Logger{
			logger: log.New(output, "", log.LstdFlags),
		}
	})
	return globalLogger
}

// CloseActiveLogger closes the singleton if something initialized it, without
// forcing initialization just to close it.
func CloseActiveLogger() error {
	if globalLogger == nil {
		return nil
	}
	return globalLogger.Close()
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "terminput.log"
	}
	return filepath.Join(home, ".terminput", "terminput.log")
}

// Std exposes the underlying *log.Logger for components that take one.
func (w *Logger) Std() *log.Logger {
	return w.logger
}

// Close closes the logger resources.
func (w *Logger) Close() error {
	if output, ok := w.logger.Writer().(*lumberjack.Logger); ok {
		return output.Close()
	}
	return nil
}

// LogSessionEvent logs terminal session lifecycle operations.
func (w *Logger) LogSessionEvent(operation, details string) {
	w.logger.Printf("Session: %s, Details: %s", operation, details)
}

// Log logs a general message.
func (w *Logger) Log(message string) {
	w.logger.Print(message)
}

// Logf logs a formatted general message.
func (w *Logger) Logf(format string, v ...interface{}) {
	w.logger.Printf(format, v...)
}

func (w *Logger) LogError(err error) {
	w.logger.Printf("Error: %s", err)
}

// Errorf logs and returns a formatted error, for call sites that both
// report and propagate.
func (w *Logger) Errorf(format string, v ...interface{}) error {
	err := fmt.Errorf(format, v...)
	w.LogError(err)
	return err
}
