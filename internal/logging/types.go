package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry is one structured log record.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Fields    map[string]string
}
