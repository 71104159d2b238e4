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

	"filterfinder/internal/search"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "FILTERFINDER"

// ConfigFileEnv names the variable that points at an optional YAML file.
const ConfigFileEnv = EnvPrefix + "_CONFIG_FILE"

// Config represents the complete application configuration
type Config struct {
	Search    SearchConfig    `yaml:"search" envconfig:"SEARCH"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// SearchConfig holds the engine defaults used when a request leaves a field unset
type SearchConfig struct {
	ModelName         string  `yaml:"model_name" envconfig:"MODEL_NAME" default:"LinearRegression" validate:"required"`
	MetricName        string  `yaml:"metric_name" envconfig:"METRIC_NAME" default:"mae" validate:"oneof=mae mse r2"`
	ValidationPercent float64 `yaml:"validation_percent" envconfig:"VALIDATION_PERCENT" default:"0.2" validate:"gt=0,lt=1"`
	Processes         int     `yaml:"processes" envconfig:"PROCESSES" default:"10" validate:"min=1,max=1024"`
	StrictModel       bool    `yaml:"strict_model" envconfig:"STRICT_MODEL" default:"false"`
	ProgressInterval  int     `yaml:"progress_interval" envconfig:"PROGRESS_INTERVAL" default:"0" validate:"min=0"`
	MaxConcurrent     int     `yaml:"max_concurrent" envconfig:"MAX_CONCURRENT" default:"2" validate:"min=1"`
	// Retention is how long finished searches and their reports are kept
	Retention time.Duration `yaml:"retention" envconfig:"RETENTION" default:"24h" validate:"min=0"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port             int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s" validate:"gt=0"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s" validate:"gt=0"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes   int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" default:"10485760" validate:"min=1"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT" default:"30m"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080" validate:"min=1"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"10" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"20" validate:"min=1"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json" validate:"oneof=json text"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/filterfinder.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir    string `yaml:"base_dir" envconfig:"BASE_DIR"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR" default:"reports"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024" validate:"min=1"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024" validate:"min=1"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s" validate:"gt=0"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s" validate:"gtfield=PingPeriod"`
}

// TelemetryConfig controls the OpenTelemetry providers
type TelemetryConfig struct {
	ServiceName   string `yaml:"service_name" envconfig:"SERVICE_NAME" default:"filterfinder" validate:"required"`
	Environment   string `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	EnableTracing bool   `yaml:"enable_tracing" envconfig:"ENABLE_TRACING" default:"true"`
	EnableMetrics bool   `yaml:"enable_metrics" envconfig:"ENABLE_METRICS" default:"true"`
	TraceExporter string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"stdout" validate:"oneof=stdout none"`
	// SampleRatio is the fraction of root spans kept
	SampleRatio float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1" validate:"gt=0,lte=1"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Layer the config file over the env defaults, then let explicit env vars win
	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configFile, err)
		}
		cfg = mergeConfigs(*fileConfig, cfg, explicitEnv())
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file. Keys absent from the file
// keep their value from base.
func loadFromFile(filePath string, base Config) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := base
	cfg.Security.AllowedOrigins = append([]string(nil), base.Security.AllowedOrigins...)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// explicitEnv returns the set of FILTERFINDER_* variables present in the
// environment, keyed by name.
func explicitEnv() map[string]bool {
	set := make(map[string]bool)
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix+"_") {
			set[name] = true
		}
	}
	return set
}

// mergeConfigs merges file config with env config. Fields whose variable is
// explicitly set in the environment take the env value; all others keep the
// file value.
func mergeConfigs(fileConfig, envConfig Config, explicit map[string]bool) Config {
	mergeStruct(reflect.ValueOf(&fileConfig).Elem(), reflect.ValueOf(envConfig), EnvPrefix, explicit)
	return fileConfig
}

func mergeStruct(dst, src reflect.Value, prefix string, explicit map[string]bool) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("envconfig")
		if tag == "" || tag == "-" || !field.IsExported() {
			continue
		}
		name := prefix + "_" + tag

		if field.Type.Kind() == reflect.Struct {
			mergeStruct(dst.Field(i), src.Field(i), name, explicit)
			continue
		}
		if explicit[name] {
			dst.Field(i).Set(src.Field(i))
		}
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return search.ValidationError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
				Value:   fe.Value(),
			}
		}
		return err
	}

	if err := c.SearchConfig().Validate(); err != nil {
		return err
	}

	// JSON is the default production format; text is accepted for development.
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/filterfinder.log"
	}

	return nil
}

// SearchConfig converts the search section into the engine configuration
func (c *Config) SearchConfig() search.Config {
	return search.Config{
		ModelName:         c.Search.ModelName,
		MetricName:        c.Search.MetricName,
		ValidationPercent: c.Search.ValidationPercent,
		Processes:         c.Search.Processes,
		StrictModel:       c.Search.StrictModel,
		ProgressInterval:  c.Search.ProgressInterval,
	}
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(ConfigFileEnv); explicit != "" {
		return explicit
	}

	// Check for config file in common locations
	locations := []string{
		"filterfinder.yaml",
		"configs/filterfinder.yaml",
		"../configs/filterfinder.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			ModelName:         "LinearRegression",
			MetricName:        "mae",
			ValidationPercent: 0.2,
			Processes:         search.DefaultProcesses,
			MaxConcurrent:     2,
			Retention:         24 * time.Hour,
		},
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      60 * time.Second,
			MaxHeaderBytes:   1 << 20, // 1MB
			MaxBodyBytes:     10 << 20,
			ShutdownTimeout:  30 * time.Second,
			OperationTimeout: 30 * time.Minute,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     10,
				Burst:   20,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/filterfinder.log",
		},
		Paths: PathsConfig{
			ReportsDir: "reports",
			LogsDir:    "logs",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   AppName,
			Environment:   "development",
			EnableTracing: true,
			EnableMetrics: true,
			TraceExporter: "stdout",
			SampleRatio:   1,
		},
	}
}
