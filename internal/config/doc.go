// Package config loads and validates the fedflow configuration.
//
// # Sources
//
// Configuration is assembled from three layers, later layers overriding
// earlier ones:
//
//	1. Built-in defaults (Default)
//	2. A YAML file (--config path, else fedflow.yaml if present)
//	3. FEDFLOW_* environment variables (highest priority)
//
// # Environment Variables
//
// Variables follow the pattern FEDFLOW_<SECTION>_<FIELD>:
//
//	FEDFLOW_SERVER_PORT=9090
//	FEDFLOW_LOGGING_LEVEL=debug
//	FEDFLOW_PATHS_DATA_DIR=/var/lib/fedflow
//	FEDFLOW_PIPELINE_KEEP_RUNS=7
//	FEDFLOW_FILTERS_FISCAL_YEAR_MIN=2020
//
// List values are comma separated, durations use Go syntax ("15s", "2h").
//
// # Paths
//
// Relative directories in the paths, source, store, and notify sections
// resolve under paths.data_dir at load time, so pointing data_dir somewhere
// else moves the whole artifact tree. Load never creates directories;
// callers that intend to write invoke EnsureDirs once at startup.
//
// # Validation
//
// Load rejects configurations with out-of-range values (ports, timeouts,
// retry policy), unknown enum literals (logging level, store backend), and
// inconsistent sections (a coercion token claimed as both true and false,
// an inverted fiscal-year filter). The error names the offending key in its
// YAML spelling.
//
// # Field Contract
//
// The canonical column set lives in the schema package; LoadSpecs returns it,
// or the operator's replacement when validation.schema_file is set.
package config
