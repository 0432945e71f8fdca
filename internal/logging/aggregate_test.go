package logging

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestReadEntries(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, LogFileName)

	writeLog(t, live,
		`{"time":"2026-03-02T08:00:03Z","level":"INFO","msg":"task assigned","tenant_id":"acme","task_id":"t1"}`,
		`not json`,
		``,
		`{"time":"2026-03-02T08:00:01Z","level":"WARN","msg":"task not reassigned","operation":"bulk"}`,
	)
	writeLog(t, live+".1",
		`{"time":"2026-03-02T07:59:00Z","level":"DEBUG","msg":"graph built","work_order_id":"wo-1"}`,
	)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write([]byte(`{"time":"2026-03-02T07:00:00Z","level":"ERROR","msg":"save failed"}` + "\n"))
	_ = zw.Close()
	if err := os.WriteFile(live+".2.gz", gz.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadEntries(dir)
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}

	var msgs []string
	for _, e := range entries {
		msgs = append(msgs, e.Message)
	}
	want := []string{"save failed", "graph built", "task not reassigned", "task assigned"}
	if strings.Join(msgs, "|") != strings.Join(want, "|") {
		t.Errorf("messages = %v, want %v", msgs, want)
	}

	last := entries[3]
	if last.TenantID != "acme" {
		t.Errorf("TenantID = %q, want acme", last.TenantID)
	}
	if last.Attrs["task_id"] != "t1" {
		t.Errorf("Attrs[task_id] = %v, want t1", last.Attrs["task_id"])
	}
	if _, ok := last.Attrs["msg"]; ok {
		t.Error("standard fields must not leak into Attrs")
	}
	if entries[1].WorkOrderID != "wo-1" || entries[2].Operation != "bulk" {
		t.Error("scope fields not parsed")
	}
}

func TestReadEntries_MissingFile(t *testing.T) {
	if _, err := ReadEntries(t.TempDir()); err == nil {
		t.Error("expected an error for a directory without engine.log")
	}
}

func TestFilterEntries(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Time: base, Level: LevelDebug, Message: "graph built", TenantID: "acme", WorkOrderID: "wo-1"},
		{Time: base.Add(time.Minute), Level: LevelInfo, Message: "task assigned", TenantID: "acme", Operation: "assign"},
		{Time: base.Add(2 * time.Minute), Level: LevelWarn, Message: "task not reassigned", TenantID: "globex", Operation: "bulk"},
		{Time: base.Add(3 * time.Minute), Level: LevelError, Message: "save failed", TenantID: "acme"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty filter", Filter{}, []string{"graph built", "task assigned", "task not reassigned", "save failed"}},
		{"level", Filter{Level: "warn"}, []string{"task not reassigned", "save failed"}},
		{"tenant", Filter{TenantID: "globex"}, []string{"task not reassigned"}},
		{"work order", Filter{WorkOrderID: "wo-1"}, []string{"graph built"}},
		{"operation", Filter{Operation: "assign"}, []string{"task assigned"}},
		{"time window", Filter{Since: base.Add(30 * time.Second), Until: base.Add(2 * time.Minute)}, []string{"task assigned", "task not reassigned"}},
		{"contains", Filter{Contains: "task", TenantID: "acme"}, []string{"task assigned"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, e := range FilterEntries(entries, tt.filter) {
				got = append(got, e.Message)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteEntries(t *testing.T) {
	entries := []Entry{{
		Time:      time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		Level:     LevelInfo,
		Message:   "task assigned",
		TenantID:  "acme",
		Operation: "assign",
		Attrs:     map[string]any{"task_id": "t1"},
	}}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteEntries(&buf, entries, "json"); err != nil {
			t.Fatal(err)
		}
		var decoded []Entry
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(decoded) != 1 || decoded[0].TenantID != "acme" {
			t.Errorf("decoded = %+v", decoded)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteEntries(&buf, entries, "text"); err != nil {
			t.Fatal(err)
		}
		want := `[2026-03-02 08:00:00.000] INFO - task assigned (tenant=acme, op=assign) {"task_id":"t1"}` + "\n"
		if buf.String() != want {
			t.Errorf("text = %q, want %q", buf.String(), want)
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteEntries(&buf, entries, "CSV"); err != nil {
			t.Fatal(err)
		}
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("output is not CSV: %v", err)
		}
		if len(records) != 2 || records[1][3] != "acme" {
			t.Errorf("records = %v", records)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if err := WriteEntries(&bytes.Buffer{}, entries, "xml"); err == nil {
			t.Error("expected an error for an unsupported format")
		}
	})
}
