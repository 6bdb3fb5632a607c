package engine

import (
	"errors"
	"testing"

	"github.com/crimson-sun/appendix/internal/engine/encoder"
	"github.com/crimson-sun/appendix/internal/engine/reconciler"
	"github.com/crimson-sun/appendix/internal/engine/scaler"
	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/schema"
)

// newTestEngine fits a scaler over two synthetic patients spanning
// ages 2..17 and wires it into an Engine.
func newTestEngine(t *testing.T, policy encoder.UnknownPolicy) *Engine {
	t.Helper()
	cat, err := schema.Default()
	if err != nil {
		t.Fatalf("schema.Default() error: %v", err)
	}
	lo := make(map[string]float64)
	hi := make(map[string]float64)
	for _, name := range cat.NumericNames() {
		lo[name] = 0
		hi[name] = 100
	}
	lo["Age"], hi["Age"] = 2, 17
	sc, err := scaler.Fit(cat.NumericNames(), []map[string]float64{lo, hi})
	if err != nil {
		t.Fatalf("scaler.Fit() error: %v", err)
	}
	eng, err := New(cat, sc, policy)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return eng
}

func patient(cat *schema.Catalogue) model.Observation {
	obs := model.NewObservation()
	for _, name := range cat.NumericNames() {
		obs.Numeric[name] = 50
	}
	obs.Numeric["Age"] = 12
	for _, a := range cat.Categorical() {
		obs.Categorical[a.Name] = a.Values[0]
	}
	return obs
}

func TestPrepareUltrasoundNotPerformed(t *testing.T) {
	eng := newTestEngine(t, encoder.Warn)
	obs := patient(eng.Catalogue())
	obs.Categorical["US_Performed"] = "no"
	delete(obs.Categorical, "Appendix_on_US")
	delete(obs.Categorical, "Free_Fluids")
	delete(obs.Numeric, "Appendix_Diameter")

	vec, err := eng.Prepare(obs)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if vec.Len() != 63 {
		t.Fatalf("Len() = %d, want 63", vec.Len())
	}
	for col, want := range map[string]float64{
		"Appendix_on_US_no":  1,
		"Appendix_on_US_yes": 0,
		"Free_Fluids_no":     1,
		"US_Performed_no":    1,
		"Appendix_Diameter":  0,
	} {
		if got, _ := vec.Get(col); got != want {
			t.Errorf("%s = %v, want %v", col, got, want)
		}
	}
	if got, _ := vec.Get("Age"); got != 10.0/15.0 {
		t.Errorf("Age = %v, want %v", got, 10.0/15.0)
	}
}

func TestPrepareWithoutScaler(t *testing.T) {
	cat, _ := schema.Default()
	eng, err := New(cat, nil, encoder.Warn)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	_, err = eng.Prepare(patient(cat))
	if !errors.Is(err, scaler.ErrMissingArtifact) {
		t.Fatalf("Prepare() error = %v, want ErrMissingArtifact", err)
	}
}

func TestPrepareMissingNumeric(t *testing.T) {
	eng := newTestEngine(t, encoder.Warn)
	obs := patient(eng.Catalogue())
	delete(obs.Numeric, "WBC_Count")

	_, err := eng.Prepare(obs)
	if !errors.Is(err, schema.ErrMissingAttribute) {
		t.Fatalf("Prepare() error = %v, want ErrMissingAttribute", err)
	}
	if errors.Is(err, reconciler.ErrSchemaMismatch) {
		t.Fatalf("Prepare() error = %v, must not be a schema mismatch", err)
	}
}

func TestPrepareUltrasoundPerformedWithoutDiameter(t *testing.T) {
	eng := newTestEngine(t, encoder.Warn)
	obs := patient(eng.Catalogue())
	obs.Categorical["US_Performed"] = "yes"
	delete(obs.Numeric, "Appendix_Diameter")

	_, err := eng.Prepare(obs)
	if !errors.Is(err, schema.ErrMissingAttribute) {
		t.Fatalf("Prepare() error = %v, want ErrMissingAttribute", err)
	}
}

func TestPrepareRejectPolicy(t *testing.T) {
	eng := newTestEngine(t, encoder.Reject)
	obs := patient(eng.Catalogue())
	obs.Categorical["Stool"] = "bloody"

	_, err := eng.Prepare(obs)
	if !errors.Is(err, encoder.ErrUnknownCategory) {
		t.Fatalf("Prepare() error = %v, want ErrUnknownCategory", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	eng := newTestEngine(t, encoder.Warn)
	obs := patient(eng.Catalogue())
	obs.Categorical["Peritonitis"] = "local"

	vec, err := eng.Prepare(obs)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	got := eng.Restore(vec)

	if got["Age"] != "12" {
		t.Errorf("Age = %q, want %q", got["Age"], "12")
	}
	if got["CRP"] != "50" {
		t.Errorf("CRP = %q, want %q", got["CRP"], "50")
	}
	if got["Peritonitis"] != "local" {
		t.Errorf("Peritonitis = %q, want %q", got["Peritonitis"], "local")
	}
	if len(got) != len(eng.Catalogue().Attributes()) {
		t.Errorf("Restore() returned %d attributes, want %d", len(got), len(eng.Catalogue().Attributes()))
	}
}

func TestRestoreUnknownCategoryReadsNotAvailable(t *testing.T) {
	eng := newTestEngine(t, encoder.ZeroFill)
	obs := patient(eng.Catalogue())
	obs.Categorical["Sex"] = "other"

	vec, err := eng.Prepare(obs)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if got := eng.Restore(vec)["Sex"]; got != model.NotAvailable {
		t.Errorf("Sex = %q, want %q", got, model.NotAvailable)
	}
}

func TestNewRejectsIncompleteScaler(t *testing.T) {
	cat, _ := schema.Default()
	sc, err := scaler.Fit([]string{"Age"}, []map[string]float64{{"Age": 1}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(cat, sc, encoder.Warn); err == nil {
		t.Fatal("New() with partial scaler: expected error")
	}
}
