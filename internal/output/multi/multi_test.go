package multi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crimson-sun/appendix/internal/model"
)

// mockOutput records calls for test assertions.
type mockOutput struct {
	records []model.AuditRecord
	closed  bool
	err    error // if set, Write returns this error
}

func (m *mockOutput) Write(_ context.Context, rec model.AuditRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

func (m *mockOutput) Close() error {
	m.closed = true
	return m.err
}

func testRecord(diagnosis string) model.AuditRecord {
	return model.AuditRecord{
		ID:         "rec-" + diagnosis,
		RecordedAt: time.Now(),
		Attributes: map[string]string{"Age": "12"},
		Outcome: model.Outcome{
			Diagnosis: model.StageResult{Stage: model.StageDiagnosis, Status: model.StatusOk, Class: diagnosis},
		},
	}
}

func TestFanOutDeliversToAll(t *testing.T) {
	a := &mockOutput{}
	b := &mockOutput{}
	c := &mockOutput{}
	m := New(a, b, c)

	ev := testRecord("appendicitis")
	if err := m.Write(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, out := range []*mockOutput{a, b, c} {
		if len(out.records) != 1 {
			t.Errorf("output %d: got %d records, want 1", i, len(out.records))
		}
		if got := out.records[0].Outcome.Diagnosis.Label(); got != "appendicitis" {
			t.Errorf("output %d: got diagnosis %q, want %q", i, got, "appendicitis")
		}
	}
}

func TestErrorDoesNotPreventDelivery(t *testing.T) {
	failing := &mockOutput{err: errors.New("disk full")}
	healthy := &mockOutput{}
	m := New(failing, healthy)

	ev := testRecord("no appendicitis")
	err := m.Write(context.Background(), ev)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// Healthy output still received the record despite earlier failure.
	if len(healthy.records) != 1 {
		t.Fatalf("healthy output got %d records, want 1", len(healthy.records))
	}

	// Failing output also received the call (error returned after).
	if len(failing.records) != 1 {
		t.Fatalf("failing output got %d records, want 1", len(failing.records))
	}
}

func TestCloseCallsAllOutputs(t *testing.T) {
	a := &mockOutput{}
	b := &mockOutput{}
	m := New(a, b)

	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !a.closed || !b.closed {
		t.Errorf("Close not called on all outputs: a=%v b=%v", a.closed, b.closed)
	}
}

func TestCloseCollectsErrors(t *testing.T) {
	a := &mockOutput{err: errors.New("err-a")}
	b := &mockOutput{err: errors.New("err-b")}
	m := New(a, b)

	err := m.Close()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !a.closed || !b.closed {
		t.Error("Close should be called on all outputs even when errors occur")
	}
}

func TestSingleOutputIdentity(t *testing.T) {
	inner := &mockOutput{}
	m := New(inner)

	ev := testRecord("appendicitis")
	if err := m.Write(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(inner.records) != 1 || inner.records[0].ID != "rec-appendicitis" {
		t.Error("single-output Multi did not behave identically to wrapped output")
	}
	if !inner.closed {
		t.Error("single-output Multi did not close inner output")
	}
}

func TestNilOutputsSkipped(t *testing.T) {
	inner := &mockOutput{}
	m := New(nil, inner, nil)
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	if err := m.Write(context.Background(), testRecord("appendicitis")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.records) != 1 {
		t.Fatalf("inner got %d records, want 1", len(inner.records))
	}
}
