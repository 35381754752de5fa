package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"fedflow/internal/schema"
	"fedflow/internal/transform"
)

// Config is the full application configuration. Load assembles it in three
// layers: built-in defaults, then an optional YAML file, then FEDFLOW_*
// environment variables.
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Security   SecurityConfig   `yaml:"security" envconfig:"SECURITY"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	Source     SourceConfig     `yaml:"source" envconfig:"SOURCE"`
	Pipeline   PipelineConfig   `yaml:"pipeline" envconfig:"PIPELINE"`
	Coercion   CoercionConfig   `yaml:"coercion" envconfig:"COERCION"`
	Filters    FiltersConfig    `yaml:"filters" envconfig:"FILTERS"`
	Validation ValidationConfig `yaml:"validation" envconfig:"VALIDATION"`
	Store      StoreConfig      `yaml:"store" envconfig:"STORE"`
	Notify     NotifyConfig     `yaml:"notify" envconfig:"NOTIFY"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" envconfig:"SCHEDULER"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig tunes the embedded HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" validate:"min=4096"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// SecurityConfig controls the browser-facing protections.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig bounds request throughput per client.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"min=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"min=0"`
}

// LoggingConfig controls the slog handler. Output "both" duplicates every
// record to stdout and the log file.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout stderr file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig names the artifact directories. Relative entries resolve under
// DataDir at load time; DataDir itself is kept as given so operators can
// choose between cwd-relative and absolute layouts.
type PathsConfig struct {
	DataDir     string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	DatasetsDir string `yaml:"datasets_dir" envconfig:"DATASETS_DIR" validate:"required"`
	ReportsDir  string `yaml:"reports_dir" envconfig:"REPORTS_DIR" validate:"required"`
	RunsDir     string `yaml:"runs_dir" envconfig:"RUNS_DIR" validate:"required"`
	LogsDir     string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
}

// SourceConfig locates the bulk extracts the download stage consumes.
type SourceConfig struct {
	Dir     string `yaml:"dir" envconfig:"DIR" validate:"required"`
	Pattern string `yaml:"pattern" envconfig:"PATTERN" validate:"required"`
}

// PipelineConfig is the orchestration policy: worker counts, stage budgets,
// retries, and artifact retention.
type PipelineConfig struct {
	Workers       int  `yaml:"workers" envconfig:"WORKERS" validate:"min=0,max=64"`
	DistinctCap   int  `yaml:"distinct_cap" envconfig:"DISTINCT_CAP" validate:"min=0"`
	KeepRuns      int  `yaml:"keep_runs" envconfig:"KEEP_RUNS" validate:"min=1"`
	WriteWorkbook bool `yaml:"write_workbook" envconfig:"WRITE_WORKBOOK"`
	MaxSpanDays   int  `yaml:"max_span_days" envconfig:"MAX_SPAN_DAYS" validate:"min=1"`

	DownloadTimeout  time.Duration `yaml:"download_timeout" envconfig:"DOWNLOAD_TIMEOUT" validate:"gt=0"`
	TransformTimeout time.Duration `yaml:"transform_timeout" envconfig:"TRANSFORM_TIMEOUT" validate:"gt=0"`
	QualityTimeout   time.Duration `yaml:"quality_timeout" envconfig:"QUALITY_TIMEOUT" validate:"gt=0"`
	CleanupTimeout   time.Duration `yaml:"cleanup_timeout" envconfig:"CLEANUP_TIMEOUT" validate:"gt=0"`
	NotifyTimeout    time.Duration `yaml:"notify_timeout" envconfig:"NOTIFY_TIMEOUT" validate:"gt=0"`

	RetryMaxAttempts  int           `yaml:"retry_max_attempts" envconfig:"RETRY_MAX_ATTEMPTS" validate:"min=1,max=10"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" envconfig:"RETRY_INITIAL_DELAY" validate:"gt=0"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay" envconfig:"RETRY_MAX_DELAY" validate:"gt=0"`
	RetryMultiplier   float64       `yaml:"retry_multiplier" envconfig:"RETRY_MULTIPLIER" validate:"gte=1"`
}

// CoercionConfig is the boolean-token and date-layout contract of the source
// export. Which literals count as true or false changes per export format,
// so it is configuration rather than code.
type CoercionConfig struct {
	TrueTokens  []string `yaml:"true_tokens" envconfig:"TRUE_TOKENS" validate:"min=1"`
	FalseTokens []string `yaml:"false_tokens" envconfig:"FALSE_TOKENS" validate:"min=1"`
	DateLayouts []string `yaml:"date_layouts" envconfig:"DATE_LAYOUTS" validate:"min=1"`
}

// Rules converts the section into engine coercion rules.
func (c CoercionConfig) Rules() transform.CoercionRules {
	return transform.CoercionRules{
		TrueTokens:  c.TrueTokens,
		FalseTokens: c.FalseTokens,
		DateLayouts: c.DateLayouts,
	}
}

// FiltersConfig narrows which rows survive the transform. The zero value
// disables filtering entirely.
type FiltersConfig struct {
	FiscalYearMin   int      `yaml:"fiscal_year_min" envconfig:"FISCAL_YEAR_MIN" validate:"min=0"`
	FiscalYearMax   int      `yaml:"fiscal_year_max" envconfig:"FISCAL_YEAR_MAX" validate:"min=0"`
	MinDollars      *float64 `yaml:"min_dollars" envconfig:"MIN_DOLLARS"`
	InstrumentTypes []string `yaml:"instrument_types" envconfig:"INSTRUMENT_TYPES"`
	Agencies        []string `yaml:"agencies" envconfig:"AGENCIES"`
}

// Rules converts the section into engine filter rules.
func (f FiltersConfig) Rules() transform.FilterRules {
	return transform.FilterRules{
		FiscalYearMin:   f.FiscalYearMin,
		FiscalYearMax:   f.FiscalYearMax,
		MinDollars:      f.MinDollars,
		InstrumentTypes: f.InstrumentTypes,
		Agencies:        f.Agencies,
	}
}

// ValidationConfig overrides the built-in field contract.
type ValidationConfig struct {
	// SchemaFile points at a YAML field-spec list replacing the built-in
	// table. Empty means the compiled-in contract.
	SchemaFile string `yaml:"schema_file" envconfig:"SCHEMA_FILE"`
	// RequiredHeaders overrides which canonical columns raise CRITICAL
	// issues when missing. Nil keeps the table's required set.
	RequiredHeaders []string `yaml:"required_headers" envconfig:"REQUIRED_HEADERS"`
}

// StoreConfig selects the run-record backend.
type StoreConfig struct {
	Backend string `yaml:"backend" envconfig:"BACKEND" validate:"oneof=file sqlite"`
	// Path is the sqlite database file. The file backend stores records
	// under Paths.RunsDir instead. The env tag is DB_PATH: envconfig also
	// consults the bare tag name, and PATH is always set.
	Path string `yaml:"path" envconfig:"DB_PATH"`
}

// NotifyConfig routes run summaries. An empty Outbox logs summaries instead
// of appending them to a file.
type NotifyConfig struct {
	Outbox string `yaml:"outbox" envconfig:"OUTBOX"`
}

// SchedulerConfig drives unattended runs.
type SchedulerConfig struct {
	Enabled     bool   `yaml:"enabled" envconfig:"ENABLED"`
	DailySpec   string `yaml:"daily_spec" envconfig:"DAILY_SPEC"`
	WeeklySpec  string `yaml:"weekly_spec" envconfig:"WEEKLY_SPEC"`
	MonthlySpec string `yaml:"monthly_spec" envconfig:"MONTHLY_SPEC"`
	Timezone    string `yaml:"timezone" envconfig:"TIMEZONE"`
}

// WebSocketConfig tunes the progress-event hub.
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" validate:"min=256"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" validate:"min=256"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" validate:"gt=0"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" validate:"gt=0"`
}

// Load builds the configuration. path names an explicit YAML file and must
// exist when non-empty; when empty, the default locations are probed and
// silently skipped if absent. Environment variables are applied last, so
// FEDFLOW_SERVER_PORT beats both the file and the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		file = findConfigFile()
	} else if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("config: %s: %w", file, err)
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", file, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	return cfg, nil
}

// findConfigFile probes the default locations for an optional config file.
func findConfigFile() string {
	locations := []string{
		DefaultConfigFile,
		"configs/" + DefaultConfigFile,
	}
	for _, loc := range locations {
		if info, err := os.Stat(loc); err == nil && !info.IsDir() {
			return loc
		}
	}
	return ""
}

// LoadSpecs returns the field contract: the compiled-in table when path is
// empty, otherwise the YAML spec list at path.
func LoadSpecs(path string) ([]schema.FieldSpec, error) {
	if path == "" {
		return schema.DefaultSpecs(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read schema file %s: %w", path, err)
	}
	var specs []schema.FieldSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("config: parse schema file %s: %w", path, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("config: schema file %s defines no fields", path)
	}
	return specs, nil
}

// structValidator checks the declarative tags. Field names in messages use
// the yaml spelling so they match what the operator wrote.
var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate applies the tag rules, then the cross-field rules the tags cannot
// express.
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
			}
			return fmt.Errorf("config: invalid values: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: validate: %w", err)
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return errors.New("config: security.enable_cors requires at least one allowed origin")
	}
	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst < 1) {
		return errors.New("config: security.rate_limit needs positive rps and burst when enabled")
	}
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.FilePath == "" {
		return fmt.Errorf("config: logging.output %q requires logging.file_path", c.Logging.Output)
	}
	if c.Pipeline.RetryMaxDelay < c.Pipeline.RetryInitialDelay {
		return errors.New("config: pipeline.retry_max_delay must be >= pipeline.retry_initial_delay")
	}
	if err := c.Coercion.checkTokens(); err != nil {
		return err
	}
	if err := c.Filters.check(); err != nil {
		return err
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return errors.New("config: store.backend sqlite requires store.path")
	}
	if c.Scheduler.Enabled {
		for name, spec := range map[string]string{
			"scheduler.daily_spec":   c.Scheduler.DailySpec,
			"scheduler.weekly_spec":  c.Scheduler.WeeklySpec,
			"scheduler.monthly_spec": c.Scheduler.MonthlySpec,
		} {
			if spec == "" {
				return fmt.Errorf("config: %s must be set when the scheduler is enabled", name)
			}
		}
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("config: scheduler.timezone %q: %w", c.Scheduler.Timezone, err)
		}
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return errors.New("config: websocket.ping_period must be shorter than websocket.pong_wait")
	}
	return nil
}

// checkTokens rejects a literal claimed as both true and false. Matching is
// case-insensitive because the coercer lowercases tokens before comparing.
func (c CoercionConfig) checkTokens() error {
	seen := make(map[string]struct{}, len(c.TrueTokens))
	for _, t := range c.TrueTokens {
		seen[strings.ToLower(t)] = struct{}{}
	}
	for _, f := range c.FalseTokens {
		if _, dup := seen[strings.ToLower(f)]; dup {
			return fmt.Errorf("config: coercion token %q is listed as both true and false", f)
		}
	}
	return nil
}

func (f FiltersConfig) check() error {
	lo, hi := f.FiscalYearMin, f.FiscalYearMax
	if (lo == 0) != (hi == 0) {
		return errors.New("config: filters.fiscal_year_min and filters.fiscal_year_max must be set together")
	}
	if lo != 0 && lo > hi {
		return fmt.Errorf("config: filters.fiscal_year_min %d exceeds filters.fiscal_year_max %d", lo, hi)
	}
	if f.MinDollars != nil && *f.MinDollars < 0 {
		return fmt.Errorf("config: filters.min_dollars must be >= 0, got %v", *f.MinDollars)
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	coercion := transform.DefaultCoercionRules()
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "fedflow.log",
		},
		Paths: PathsConfig{
			DataDir:     "data",
			DatasetsDir: "datasets",
			ReportsDir:  "reports",
			RunsDir:     "runs",
			LogsDir:     "logs",
		},
		Source: SourceConfig{
			Dir:     "raw",
			Pattern: "*.csv",
		},
		Pipeline: PipelineConfig{
			Workers:     0,
			DistinctCap: 50,
			KeepRuns:    30,
			MaxSpanDays: 366,

			DownloadTimeout:  15 * time.Minute,
			TransformTimeout: 30 * time.Minute,
			QualityTimeout:   10 * time.Minute,
			CleanupTimeout:   5 * time.Minute,
			NotifyTimeout:    2 * time.Minute,

			RetryMaxAttempts:  3,
			RetryInitialDelay: 1 * time.Second,
			RetryMaxDelay:     30 * time.Second,
			RetryMultiplier:   2.0,
		},
		Coercion: CoercionConfig{
			TrueTokens:  coercion.TrueTokens,
			FalseTokens: coercion.FalseTokens,
			DateLayouts: coercion.DateLayouts,
		},
		Filters:    FiltersConfig{},
		Validation: ValidationConfig{},
		Store: StoreConfig{
			Backend: "file",
			Path:    "runs.db",
		},
		Notify: NotifyConfig{},
		Scheduler: SchedulerConfig{
			DailySpec:   "0 6 * * *",
			WeeklySpec:  "0 7 * * 1",
			MonthlySpec: "0 8 1 * *",
			Timezone:    "UTC",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
