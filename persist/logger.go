// Package persist provides the process-wide logger used by every component
// of the stars server. It owns the log file and its banner lines; the server
// packages receive the embedded *logrus.Logger and log through it directly.
package persist

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger, bracketing the underlying log file with
// STARTUP and SHUTDOWN banner lines so that a log file can be split into
// discrete process lifetimes just by grepping for those markers.
type Logger struct {
	*logrus.Logger
	file io.Closer
}

// NewLogger creates a Logger that writes to the file at filename, creating
// it if necessary. The logger defaults to Info level; Debug-level messages
// are dropped unless SetDebug(true) is called.
func NewLogger(filename string) (*Logger, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	base := logrus.New()
	base.SetOutput(file)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	l := &Logger{Logger: base, file: file}
	l.Println("STARTUP: stars logger started logging")
	return l, nil
}

// SetDebug toggles whether Debug-level messages are written.
func (l *Logger) SetDebug(on bool) {
	if on {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
}

// Close writes a SHUTDOWN banner and closes the underlying log file.
func (l *Logger) Close() error {
	l.Println("SHUTDOWN: stars logger stopped logging")
	return l.file.Close()
}
