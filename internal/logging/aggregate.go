package logging

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Entry is one parsed line of engine.log.
type Entry struct {
	Time        time.Time      `json:"time"`
	Level       string         `json:"level"`
	Message     string         `json:"msg"`
	TenantID    string         `json:"tenant_id,omitempty"`
	WorkOrderID string         `json:"work_order_id,omitempty"`
	Operation   string         `json:"operation,omitempty"`
	Attrs       map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries. Set fields are ANDed.
type Filter struct {
	// Level keeps entries at or above it.
	Level       string
	Since       time.Time
	Until       time.Time
	TenantID    string
	WorkOrderID string
	Operation   string
	// Contains matches a substring of the message.
	Contains string
}

var levelRank = map[string]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}

// maxLineSize bounds a single log line when scanning.
const maxLineSize = 1 << 20

// ReadEntries parses engine.log in dir together with its rotated backups,
// compressed or not, and returns the entries oldest first. Lines that are
// not JSON are skipped.
func ReadEntries(dir string) ([]Entry, error) {
	live := filepath.Join(dir, LogFileName)
	if _, err := os.Stat(live); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no %s in %s: %w", LogFileName, dir, err)
		}
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	backups, _ := filepath.Glob(live + ".*")
	var entries []Entry
	for _, path := range append(backups, live) {
		got, err := readFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, got...)
	}

	slices.SortStableFunc(entries, func(a, b Entry) int { return a.Time.Compare(b.Time) })
	return entries, nil
}

func readFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if e, err := ParseEntry(line); err == nil {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return entries, nil
}

// ParseEntry decodes one JSON log line. Attributes beyond the standard ones
// land in Attrs.
func ParseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	str := func(key string) string {
		s, _ := raw[key].(string)
		delete(raw, key)
		return s
	}
	e := Entry{
		Level:       str("level"),
		Message:     str("msg"),
		TenantID:    str("tenant_id"),
		WorkOrderID: str("work_order_id"),
		Operation:   str("operation"),
	}
	if ts := str("time"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Time = t
		}
	}
	if len(raw) > 0 {
		e.Attrs = raw
	}
	return e, nil
}

// Match reports whether e passes f.
func (f Filter) Match(e Entry) bool {
	if f.Level != "" {
		want, ok1 := levelRank[strings.ToUpper(f.Level)]
		got, ok2 := levelRank[e.Level]
		if ok1 && ok2 && got < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Time.After(f.Until) {
		return false
	}
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.WorkOrderID != "" && e.WorkOrderID != f.WorkOrderID {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	return f.Contains == "" || strings.Contains(e.Message, f.Contains)
}

// FilterEntries returns the entries matching f.
func FilterEntries(entries []Entry, f Filter) []Entry {
	if f == (Filter{}) {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// ExportFormats lists the formats accepted by WriteEntries.
func ExportFormats() []string { return []string{"json", "text", "csv"} }

// WriteEntries renders entries to w as "json", "text" or "csv".
func WriteEntries(w io.Writer, entries []Entry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text", "":
		return writeText(w, entries)
	case "csv":
		return writeCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: %s)", format, strings.Join(ExportFormats(), ", "))
	}
}

func scopeOf(e Entry) string {
	var scope []string
	if e.TenantID != "" {
		scope = append(scope, "tenant="+e.TenantID)
	}
	if e.WorkOrderID != "" {
		scope = append(scope, "work_order="+e.WorkOrderID)
	}
	if e.Operation != "" {
		scope = append(scope, "op="+e.Operation)
	}
	return strings.Join(scope, ", ")
}

// writeText prints [TIME] LEVEL - MESSAGE (scope) {attrs}.
func writeText(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %s - %s", e.Time.Format("2006-01-02 15:04:05.000"), e.Level, e.Message)
		if scope := scopeOf(e); scope != "" {
			fmt.Fprintf(&b, " (%s)", scope)
		}
		if len(e.Attrs) > 0 {
			attrs, _ := json.Marshal(e.Attrs)
			b.WriteString(" ")
			b.Write(attrs)
		}
		b.WriteString("\n")
		if _, err := io.WriteString(w, b.String()); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "level", "message", "tenant_id", "work_order_id", "operation", "attrs"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range entries {
		var attrs string
		if len(e.Attrs) > 0 {
			if b, err := json.Marshal(e.Attrs); err == nil {
				attrs = string(b)
			}
		}
		record := []string{e.Time.Format(time.RFC3339Nano), e.Level, e.Message, e.TenantID, e.WorkOrderID, e.Operation, attrs}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
