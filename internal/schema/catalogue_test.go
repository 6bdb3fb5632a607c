package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/appendix/internal/model"
)

const miniCatalogue = `
version: "test"
attributes:
  - {name: Age, kind: numeric}
  - {name: Sex, kind: categorical, values: ["female", "male"]}
  - {name: US_Performed, kind: categorical, values: ["no", "yes"]}
features: [Age, Sex_female, Sex_male, US_Performed_no, US_Performed_yes]
audit_columns: [Sex, Age, US_Performed]
targets:
  - {name: Diagnosis, positive: "appendicitis"}
  - {name: Severity, positive_only: true}
  - {name: Management, positive_only: true}
`

func loadString(t *testing.T, doc string) (*Catalogue, error) {
	t.Helper()
	return Load(strings.NewReader(doc))
}

func mustDefault(t *testing.T) *Catalogue {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestDefaultCatalogueIsConsistent(t *testing.T) {
	c := mustDefault(t)

	s := c.Schema()
	assert.Equal(t, 63, s.Len())
	cols := s.Columns()
	assert.Equal(t, "Age", cols[0])
	assert.Equal(t, "Paedriatic_Appendicitis_Score", cols[15])
	assert.Equal(t, "Sex_female", cols[16])
	assert.Equal(t, "Free_Fluids_yes", cols[len(cols)-1])

	assert.Len(t, c.Numeric(), 16)
	assert.Len(t, c.Categorical(), 19)
	assert.Len(t, c.AuditColumns(), 35)
	assert.Equal(t, "appendicitis", c.PositiveClass())

	mgmt, ok := c.Target(model.StageManagement)
	require.True(t, ok)
	assert.True(t, mgmt.PositiveOnly)
	assert.Equal(t, []string{"secondary surgical", "simultaneous appendectomy"}, mgmt.Exclude)
}

func TestDefaultCatalogueIndicatorGroupsFollowValueOrder(t *testing.T) {
	c := mustDefault(t)
	s := c.Schema()

	for _, a := range c.Categorical() {
		first := s.Index(IndicatorName(a.Name, a.Values[0]))
		require.GreaterOrEqual(t, first, 0, "attribute %s", a.Name)
		for i, v := range a.Values {
			assert.Equal(t, first+i, s.Index(IndicatorName(a.Name, v)), "attribute %s value %s", a.Name, v)
		}
	}
}

func TestLoadMiniCatalogue(t *testing.T) {
	c, err := loadString(t, miniCatalogue)
	require.NoError(t, err)

	want := []string{"Age", "Sex_female", "Sex_male", "US_Performed_no", "US_Performed_yes"}
	if diff := cmp.Diff(want, c.Schema().Columns()); diff != "" {
		t.Errorf("schema columns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Sex", "Age", "US_Performed"}, c.AuditColumns())
}

func TestLoadRejectsInconsistentCatalogues(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
	}{
		{"feature order drift", [2]string{"[Age, Sex_female, Sex_male,", "[Age, Sex_male, Sex_female,"}},
		{"missing feature", [2]string{", US_Performed_yes]", "]"}},
		{"extra feature", [2]string{"US_Performed_yes]", "US_Performed_yes, Leaked]"}},
		{"unknown audit column", [2]string{"[Sex, Age, US_Performed]", "[Sex, Age, Diagnosis]"}},
		{"short audit columns", [2]string{"[Sex, Age, US_Performed]", "[Sex, Age]"}},
		{"duplicate value", [2]string{`["female", "male"]`, `["female", "female"]`}},
		{"missing target", [2]string{"  - {name: Management, positive_only: true}\n", ""}},
		{"no positive class", [2]string{`positive: "appendicitis"`, `positive: ""`}},
		{"unknown kind", [2]string{"{name: Age, kind: numeric}", "{name: Age, kind: ordinal}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(miniCatalogue, tt.replace[0], tt.replace[1], 1)
			require.NotEqual(t, miniCatalogue, doc, "replacement did not apply")
			_, err := loadString(t, doc)
			assert.ErrorIs(t, err, ErrInvalidCatalogue)
		})
	}
}

func TestLoadRejectsNumericAfterCategorical(t *testing.T) {
	doc := strings.Replace(miniCatalogue,
		"  - {name: Age, kind: numeric}\n  - {name: Sex, kind: categorical, values: [\"female\", \"male\"]}\n",
		"  - {name: Sex, kind: categorical, values: [\"female\", \"male\"]}\n  - {name: Age, kind: numeric}\n", 1)
	_, err := loadString(t, doc)
	assert.ErrorIs(t, err, ErrInvalidCatalogue)
}

func TestLoadRejectsInvalidDefaults(t *testing.T) {
	bad := miniCatalogue + `
defaults:
  - when: {attribute: US_Performed, equals: "maybe"}
    set: {Age: "0"}
`
	_, err := loadString(t, bad)
	assert.ErrorIs(t, err, ErrInvalidCatalogue)

	badNumber := miniCatalogue + `
defaults:
  - when: {attribute: US_Performed, equals: "no"}
    set: {Age: "zero"}
`
	_, err = loadString(t, badNumber)
	assert.ErrorIs(t, err, ErrInvalidCatalogue)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := loadString(t, miniCatalogue+"\nextra_section: true\n")
	assert.Error(t, err)
}

func TestApplyDefaultsUltrasoundSkipped(t *testing.T) {
	c := mustDefault(t)
	obs := model.NewObservation()
	obs.Categorical["US_Performed"] = "no"

	got := c.ApplyDefaults(obs)

	assert.Equal(t, "no", got.Categorical["Appendix_on_US"])
	assert.Equal(t, "no", got.Categorical["Free_Fluids"])
	assert.Equal(t, 0.0, got.Numeric["Appendix_Diameter"])
	_, touched := obs.Categorical["Appendix_on_US"]
	assert.False(t, touched, "ApplyDefaults must not mutate its input")
}

func TestApplyDefaultsKeepsRecordedValues(t *testing.T) {
	c := mustDefault(t)
	obs := model.NewObservation()
	obs.Categorical["US_Performed"] = "no"
	obs.Categorical["Free_Fluids"] = "yes"
	obs.Numeric["Appendix_Diameter"] = 7.5

	got := c.ApplyDefaults(obs)

	assert.Equal(t, "yes", got.Categorical["Free_Fluids"])
	assert.Equal(t, 7.5, got.Numeric["Appendix_Diameter"])
	assert.Equal(t, "no", got.Categorical["Appendix_on_US"])
}

func TestApplyDefaultsUltrasoundPerformed(t *testing.T) {
	c := mustDefault(t)
	obs := model.NewObservation()
	obs.Categorical["US_Performed"] = "yes"

	got := c.ApplyDefaults(obs)

	_, ok := got.Categorical["Appendix_on_US"]
	assert.False(t, ok)
	_, ok = got.Numeric["Appendix_Diameter"]
	assert.False(t, ok)
}

func TestParseRecord(t *testing.T) {
	c := mustDefault(t)
	obs, err := c.ParseRecord(map[string]string{
		"Age":       " 12 ",
		"Sex":       "Female",
		"Nausea":    "YES ",
		"Stool":     "Constipation, Diarrhea",
		"Diagnosis": "appendicitis", // target columns are ignored
		"BMI":       "",
	})
	require.NoError(t, err)

	assert.Equal(t, 12.0, obs.Numeric["Age"])
	assert.Equal(t, "female", obs.Categorical["Sex"])
	assert.Equal(t, "yes", obs.Categorical["Nausea"])
	assert.Equal(t, "constipation, diarrhea", obs.Categorical["Stool"])
	_, ok := obs.Numeric["BMI"]
	assert.False(t, ok, "empty values are absent")
	_, ok = obs.Categorical["Diagnosis"]
	assert.False(t, ok)
}

func TestParseRecordInvalidNumber(t *testing.T) {
	c := mustDefault(t)
	_, err := c.ParseRecord(map[string]string{"Age": "twelve"})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestParseObservation(t *testing.T) {
	c := mustDefault(t)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"Age": 12, "CRP": "3.5", "Sex": "male", "Nausea": null}`), &doc))

	obs, err := c.ParseObservation(doc)
	require.NoError(t, err)
	assert.Equal(t, 12.0, obs.Numeric["Age"])
	assert.Equal(t, 3.5, obs.Numeric["CRP"])
	assert.Equal(t, "male", obs.Categorical["Sex"])
	_, ok := obs.Categorical["Nausea"]
	assert.False(t, ok)

	_, err = c.ParseObservation(map[string]any{"Sex": 1.0})
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = c.ParseObservation(map[string]any{"Age": true})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestCheckComplete(t *testing.T) {
	c := mustDefault(t)
	obs := model.NewObservation()
	for _, name := range c.NumericNames() {
		obs.Numeric[name] = 1
	}
	assert.NoError(t, c.CheckComplete(obs))

	delete(obs.Numeric, "CRP")
	err := c.CheckComplete(obs)
	assert.ErrorIs(t, err, ErrMissingAttribute)
	assert.Contains(t, err.Error(), "CRP")
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct{ in, want string }{
		{"no", "no"},
		{"  No ", "no"},
		{"YES", "yes"},
		{"+++", "+++"},
		{"Generalized", "generalized"},
	}
	for _, tt := range tests {
		if got := NormalizeCategory(tt.in); got != tt.want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{12, "12"},
		{12.000000000000002, "12"},
		{37.5, "37.5"},
		{-0.0000000000001, "0"},
		{0.1234567891, "0.123456789"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidator(t *testing.T) {
	c := mustDefault(t)
	v, err := c.NewValidator()
	require.NoError(t, err)

	valid := map[string]any{}
	for _, name := range c.NumericNames() {
		valid[name] = 1.0
	}
	valid["Sex"] = "female"
	assert.NoError(t, v.Validate(valid))

	// Appendix_Diameter is filled by the ultrasound default, so it is optional.
	delete(valid, "Appendix_Diameter")
	assert.NoError(t, v.Validate(valid))

	delete(valid, "Age")
	assert.ErrorIs(t, v.Validate(valid), ErrInvalidValue)

	valid["Age"] = "twelve"
	assert.ErrorIs(t, v.Validate(valid), ErrInvalidValue)

	valid["Age"] = 12.0
	valid["Sex"] = 3.0
	assert.ErrorIs(t, v.Validate(valid), ErrInvalidValue)
}

func TestValidatorLeavesCategoriesToEncoder(t *testing.T) {
	c := mustDefault(t)
	v, err := c.NewValidator()
	require.NoError(t, err)

	doc := map[string]any{}
	for _, name := range c.NumericNames() {
		doc[name] = 1.0
	}
	doc["Sex"] = " Female"
	assert.NoError(t, v.Validate(doc), "normalized after validation")
	doc["Stool"] = "bloody"
	assert.NoError(t, v.Validate(doc), "unknown categories follow the encoder policy")

	props := c.JSONSchema()["properties"].(map[string]any)
	sex := props["Sex"].(map[string]any)
	assert.Equal(t, []string{"female", "male"}, sex["examples"])
	assert.NotContains(t, sex, "enum")
}
