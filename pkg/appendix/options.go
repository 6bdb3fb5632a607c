package appendix

import "path/filepath"

type options struct {
	modelDir      string
	runtimeLib    string
	auditPath     string
	auditDB       string
	unknownPolicy string
}

// Option configures a Client.
type Option func(*options)

// WithModelDir sets the directory containing the scaler and stage models.
// Expects: minmax_scaler.json, appendicitis_{Diagnosis,Severity,Management}.onnx
// and their .classes.json files. Default: "models".
func WithModelDir(dir string) Option {
	return func(o *options) {
		o.modelDir = dir
	}
}

// WithRuntimeLib sets the ONNX Runtime shared library path.
// Default: libonnxruntime.so inside the model directory.
func WithRuntimeLib(path string) Option {
	return func(o *options) {
		o.runtimeLib = path
	}
}

// WithAuditPath sets the CSV audit table path.
// Default: data/inferred_patients.csv.
func WithAuditPath(path string) Option {
	return func(o *options) {
		o.auditPath = path
	}
}

// WithAuditDB enables the SQLite audit log at path.
func WithAuditDB(path string) Option {
	return func(o *options) {
		o.auditDB = path
	}
}

// WithUnknownPolicy sets the handling of categorical values outside the
// catalogue: "zero", "warn" or "reject". Default: "warn".
func WithUnknownPolicy(policy string) Option {
	return func(o *options) {
		o.unknownPolicy = policy
	}
}

func defaultOptions() options {
	return options{
		modelDir:      "models",
		auditPath:     filepath.Join("data", "inferred_patients.csv"),
		unknownPolicy: "warn",
	}
}

// resolveRuntimeLib defaults the runtime library into the model directory.
func resolveRuntimeLib(o options) string {
	if o.runtimeLib != "" {
		return o.runtimeLib
	}
	return filepath.Join(o.modelDir, "libonnxruntime.so")
}
