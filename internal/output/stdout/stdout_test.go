package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/appendix/internal/model"
)

func testRecord() model.AuditRecord {
	return model.AuditRecord{
		ID:         "3f0c",
		RecordedAt: time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC),
		Attributes: map[string]string{"Age": "12"},
		Outcome: model.Outcome{
			Diagnosis:  model.StageResult{Stage: model.StageDiagnosis, Status: model.StatusOk, Class: "appendicitis", Probability: 0.91},
			Severity:   model.StageResult{Stage: model.StageSeverity, Status: model.StatusFailed, Err: errors.New("model missing")},
			Management: model.StageResult{Stage: model.StageManagement, Status: model.StatusOk, Class: "conservative", Probability: 0.85},
		},
	}
}

// captureStdout redirects os.Stdout to capture output.
func captureStdout(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestOutputCompactJSON(t *testing.T) {
	result := captureStdout(func() {
		out := New(false)
		out.Write(context.Background(), testRecord())
	})

	// Should be single line (NDJSON).
	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if m["id"] != "3f0c" {
		t.Errorf("id = %v, want 3f0c", m["id"])
	}
	diag := m["diagnosis"].(map[string]any)
	if diag["label"] != "appendicitis" || diag["probability"] != 0.91 {
		t.Errorf("diagnosis = %v", diag)
	}
	sev := m["severity"].(map[string]any)
	if sev["label"] != model.NotAvailable || sev["error"] != "model missing" {
		t.Errorf("severity = %v", sev)
	}
	if _, ok := sev["probability"]; ok {
		t.Error("failed stage must not carry a probability")
	}
}

func TestOutputPrettyJSON(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriter(&buf, true)
	if err := out.Write(context.Background(), testRecord()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"recorded_at\"") {
		t.Errorf("expected indented JSON, got:\n%s", buf.String())
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
