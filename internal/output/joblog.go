package output

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidLevel is returned for job log levels other than info, warning
// and error.
var ErrInvalidLevel = errors.New("invalid log level")

// Job log levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

const logTimeLayout = "2006-01-02 15:04:05"

// JobLog writes human-readable log lines into the host stream.
type JobLog struct {
	out         *Writer
	timeTagging bool
	now         func() time.Time
}

// NewJobLog returns a job log writing through out.
func NewJobLog(out *Writer, timeTagging bool) *JobLog {
	return &JobLog{out: out, timeTagging: timeTagging, now: time.Now}
}

// SetTimeTagging switches timestamp prefixes on or off.
func (l *JobLog) SetTimeTagging(on bool) {
	l.timeTagging = on
}

// Log writes message tagged with level. An empty level means info.
func (l *JobLog) Log(message, level string) error {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = LevelInfo
	}
	switch level {
	case LevelInfo, LevelWarning, LevelError:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}

	tag := "[" + strings.ToUpper(level) + "]"
	line := tag + " " + message
	if l.timeTagging {
		line = "[" + l.now().Format(logTimeLayout) + "] " + line
	}
	return l.out.Emit(line)
}

func (l *JobLog) Info(message string) error {
	return l.Log(message, LevelInfo)
}

func (l *JobLog) Warning(message string) error {
	return l.Log(message, LevelWarning)
}

func (l *JobLog) Error(message string) error {
	return l.Log(message, LevelError)
}
