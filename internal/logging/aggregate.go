package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed debug.log line with its structured fields split
// out; anything beyond the standard keys lands in Attrs.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	SessionID string         `json:"session_id,omitempty"`
	Project   string         `json:"project,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects entries; set criteria combine with AND, zero values
// mean "don't filter on this".
type LogFilter struct {
	// Level keeps entries at or above this level (DEBUG < INFO < WARN < ERROR).
	Level string
	// StartTime / EndTime bound the entry timestamps, inclusive.
	StartTime time.Time
	EndTime   time.Time
	// SessionID, Project, and Tool match their structured fields exactly.
	SessionID string
	Project   string
	Tool      string
	// MessageContains keeps entries whose message has this substring.
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// standardFields are the JSON keys lifted into named LogEntry fields;
// everything else is collected into Attrs.
var standardFields = map[string]bool{
	"time":       true,
	"level":      true,
	"msg":        true,
	"session_id": true,
	"project":    true,
	"tool":       true,
}

// AggregateLogs parses every line of a session directory's debug.log into
// LogEntry values sorted by timestamp. Malformed lines are skipped so a
// partially corrupted log still yields what it can.
func AggregateLogs(sessionDir string) ([]LogEntry, error) {
	logPath := filepath.Join(sessionDir, "debug.log")

	file, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file found in session directory: %w", err)
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	// Entries carrying large tool payloads can exceed the default token
	// size.
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, maxLine), maxLine)

	var entries []LogEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{Attrs: make(map[string]any)}

	if ts, ok := raw["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Timestamp = t
		}
	}
	entry.Level, _ = raw["level"].(string)
	entry.Message, _ = raw["msg"].(string)
	entry.SessionID, _ = raw["session_id"].(string)
	entry.Project, _ = raw["project"].(string)
	entry.Tool, _ = raw["tool"].(string)

	for k, v := range raw {
		if !standardFields[k] {
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterLogs returns the entries matching every criterion set on filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if filter == (LogFilter{}) {
		return entries
	}

	var out []LogEntry
	for _, entry := range entries {
		if matchesFilter(entry, filter) {
			out = append(out, entry)
		}
	}
	return out
}

func matchesFilter(entry LogEntry, filter LogFilter) bool {
	if filter.Level != "" {
		min, minOK := levelOrder[strings.ToUpper(filter.Level)]
		lvl, lvlOK := levelOrder[entry.Level]
		if minOK && lvlOK && lvl < min {
			return false
		}
	}
	if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
		return false
	}
	if filter.SessionID != "" && entry.SessionID != filter.SessionID {
		return false
	}
	if filter.Project != "" && entry.Project != filter.Project {
		return false
	}
	if filter.Tool != "" && entry.Tool != filter.Tool {
		return false
	}
	if filter.MessageContains != "" && !strings.Contains(entry.Message, filter.MessageContains) {
		return false
	}
	return true
}

// ExportLogs aggregates a session directory's logs and writes them to
// outputPath in the given format: "json", "text", or "csv".
func ExportLogs(sessionDir, outputPath string, format string) error {
	entries, err := AggregateLogs(sessionDir)
	if err != nil {
		return fmt.Errorf("aggregate logs: %w", err)
	}
	return ExportLogEntries(entries, outputPath, format)
}

// ExportLogEntries writes already-aggregated (possibly filtered) entries
// to outputPath in the given format: "json", "text", or "csv".
func ExportLogEntries(entries []LogEntry, outputPath string, format string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(file)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text":
		return exportText(file, entries)
	case "csv":
		return exportCSV(file, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, text, csv)", format)
	}
}

// exportText renders "[timestamp] LEVEL - message (context) {attrs}", one
// entry per line.
func exportText(file *os.File, entries []LogEntry) error {
	for _, entry := range entries {
		parts := []string{
			fmt.Sprintf("[%s]", entry.Timestamp.Format("2006-01-02 15:04:05.000")),
			entry.Level,
			"-",
			entry.Message,
		}

		var context []string
		if entry.SessionID != "" {
			context = append(context, "session="+entry.SessionID)
		}
		if entry.Project != "" {
			context = append(context, "project="+entry.Project)
		}
		if entry.Tool != "" {
			context = append(context, "tool="+entry.Tool)
		}
		if len(context) > 0 {
			parts = append(parts, "("+strings.Join(context, ", ")+")")
		}

		if len(entry.Attrs) > 0 {
			if attrsJSON, err := json.Marshal(entry.Attrs); err == nil {
				parts = append(parts, string(attrsJSON))
			}
		}

		if _, err := file.WriteString(strings.Join(parts, " ") + "\n"); err != nil {
			return fmt.Errorf("write text entry: %w", err)
		}
	}
	return nil
}

func exportCSV(file *os.File, entries []LogEntry) error {
	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "level", "message", "session_id", "project", "tool", "attrs"}); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, entry := range entries {
		attrsJSON := ""
		if len(entry.Attrs) > 0 {
			if b, err := json.Marshal(entry.Attrs); err == nil {
				attrsJSON = string(b)
			}
		}
		record := []string{
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Level,
			entry.Message,
			entry.SessionID,
			entry.Project,
			entry.Tool,
			attrsJSON,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}
	return nil
}
