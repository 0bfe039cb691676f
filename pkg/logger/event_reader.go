package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"time"
)

// LogEntry is one decoded line of a category log
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// EventReader reads back the structured category logs
type EventReader struct {
	logsDir string
}

// NewEventReader creates a reader over logsDir
func NewEventReader(logsDir string) *EventReader {
	return &EventReader{logsDir: logsDir}
}

// Tail returns at most limit of the newest entries for category on date.
// A missing file yields an empty slice.
func (r *EventReader) Tail(category LogCategory, date time.Time, limit int) ([]LogEntry, error) {
	file, err := os.Open(CategoryLogPath(r.logsDir, category, date.Format("20060102")))
	if err != nil {
		if os.IsNotExist(err) {
			return []LogEntry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	if limit <= 0 {
		limit = 100
	}

	// ring buffer of the newest lines
	ring := make([]string, 0, limit)
	next := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if len(ring) < limit {
			ring = append(ring, line)
			continue
		}
		ring[next] = line
		next = (next + 1) % limit
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	entries := make([]LogEntry, 0, len(ring))
	for i := 0; i < len(ring); i++ {
		entries = append(entries, decodeEntry(ring[(next+i)%len(ring)]))
	}
	return entries, nil
}

func decodeEntry(line string) LogEntry {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{Level: "info", Message: line}
	}

	entry := LogEntry{Fields: map[string]interface{}{}}
	for k, v := range raw {
		s, _ := v.(string)
		switch k {
		case "ts":
			entry.Timestamp = s
		case "level":
			entry.Level = s
		case "msg":
			entry.Message = s
		default:
			entry.Fields[k] = v
		}
	}
	return entry
}
