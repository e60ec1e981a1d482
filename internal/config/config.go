// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Library  LibraryConfig
	Server   ServerConfig
	Model    ModelConfig
	Analysis AnalysisConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	// BasePath is the root for the database, search index, and extracted
	// chapter text (default: ~/VoxBook/data).
	BasePath string
}

// LibraryConfig holds ebook library configuration.
type LibraryConfig struct {
	// EbookPath is the folder watched for new ebooks. Empty disables watching;
	// books can still be imported through the API.
	EbookPath string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Name          string
	LocalURL      string        // Optional
	RemoteURL     string        // Optional
	Port          string        // Server port (default: 8080)
	ReadTimeout   time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout  time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout   time.Duration // HTTP idle timeout (default: 60s)
	AdvertiseMDNS bool          // Advertise via mDNS/Zeroconf (default: true)
}

// ModelConfig holds language model backend configuration.
type ModelConfig struct {
	// Backend selects the completion API flavor: "llama" for a local
	// llama-server, "openai" for an OpenAI-compatible endpoint.
	Backend string
	// BaseURL of the model server (default: http://127.0.0.1:8080 for llama).
	BaseURL string
	// APIKey for openai-compatible backends. Unused by llama.
	APIKey string
	// Name is the model identifier sent to openai-compatible backends.
	Name string
	// RequestTimeout bounds a single completion call (default: 5m; local
	// models on small hardware are slow).
	RequestTimeout time.Duration
	// HealthTimeout bounds the health probe before analysis starts (default: 5s).
	HealthTimeout time.Duration
	// RateLimit caps inference calls per second (default: 2). Local model
	// servers choke on request bursts.
	RateLimit float64
	// RateBurst is the token bucket size for inference calls (default: 4).
	RateBurst int
}

// AnalysisConfig holds chapter analysis pipeline configuration.
type AnalysisConfig struct {
	// Enabled allows disabling background analysis entirely (default: true).
	Enabled bool
	// MaxConcurrent is the number of books analyzed simultaneously (default: 1).
	// Batches within a book are always sequential.
	MaxConcurrent int
	// SupervisedThreshold is the expected-duration cutoff above which a task
	// runs under supervision with progress events (default: 60s).
	SupervisedThreshold time.Duration
	// MaxInputTokens is the per-batch passage token budget (default: 3700,
	// leaving headroom for the prompt scaffold in a 4k context window).
	MaxInputTokens int
	// Temperature for extraction calls (default: 0.01). Near-greedy
	// sampling keeps the structured output parseable.
	Temperature float64
	// MaxBatchFailures fails a chapter run after that many consecutive
	// unparseable batches (default: 3). Zero disables the cutoff.
	MaxBatchFailures int
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	// Define command-line flags.
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for data storage")
	ebookPath := flag.String("ebook-path", "", "Path to ebook library watch folder")
	serverName := flag.String("server-name", "", "Name for the server")
	serverLocalURL := flag.String("local-url", "", "Internal server url")
	serverRemoteURL := flag.String("remote-url", "", "Remote server url")

	// Server flags
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	advertiseMDNS := flag.String("advertise-mdns", "", "Advertise via mDNS/Zeroconf (default: true)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	// Model flags
	modelBackend := flag.String("model-backend", "", "Model backend: llama or openai (default: llama)")
	modelURL := flag.String("model-url", "", "Base URL of the model server")
	modelAPIKey := flag.String("model-api-key", "", "API key for openai-compatible backends")
	modelName := flag.String("model-name", "", "Model name for openai-compatible backends")
	modelTimeout := flag.String("model-timeout", "", "Completion request timeout (default: 5m)")
	modelRateLimit := flag.String("model-rate-limit", "", "Max inference calls per second (default: 2)")
	modelRateBurst := flag.String("model-rate-burst", "", "Inference call burst size (default: 4)")

	// Analysis flags
	analysisEnabled := flag.String("analysis-enabled", "", "Enable background chapter analysis (default: true)")
	analysisMaxConcurrent := flag.String("analysis-max-concurrent", "", "Max books analyzed at once (default: 1)")
	supervisedThreshold := flag.String("supervised-threshold", "", "Duration above which tasks run supervised (default: 60s)")
	analysisInputTokens := flag.String("analysis-input-tokens", "", "Per-batch passage token budget (default: 3700)")
	analysisTemperature := flag.String("analysis-temperature", "", "Sampling temperature for extraction calls (default: 0.01)")
	analysisMaxBatchFailures := flag.String("analysis-max-batch-failures", "", "Consecutive unparseable batches before a chapter fails (default: 3)")

	// Parse flags but don't exit on error - we want to handle it gracefully.
	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// Build config with proper precedence.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},

		Library: LibraryConfig{
			EbookPath: getConfigValue(*ebookPath, "EBOOK_PATH", ""),
		},

		Server: ServerConfig{
			Name:          getConfigValue(*serverName, "SERVER_NAME", "VoxBook Server"),
			LocalURL:      getConfigValue(*serverLocalURL, "SERVER_LOCAL_URL", ""),
			RemoteURL:     getConfigValue(*serverRemoteURL, "SERVER_REMOTE_URL", ""),
			Port:          getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			AdvertiseMDNS: getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", true),
		},

		Model: ModelConfig{
			Backend:   getConfigValue(*modelBackend, "MODEL_BACKEND", "llama"),
			BaseURL:   getConfigValue(*modelURL, "MODEL_URL", "http://127.0.0.1:8081"),
			APIKey:    getConfigValue(*modelAPIKey, "MODEL_API_KEY", ""),
			Name:      getConfigValue(*modelName, "MODEL_NAME", ""),
			RateLimit: getFloatConfigValue(*modelRateLimit, "MODEL_RATE_LIMIT", 2),
			RateBurst: getIntConfigValue(*modelRateBurst, "MODEL_RATE_BURST", 4),
		},

		Analysis: AnalysisConfig{
			Enabled:          getBoolConfigValue(*analysisEnabled, "ANALYSIS_ENABLED", true),
			MaxConcurrent:    getIntConfigValue(*analysisMaxConcurrent, "ANALYSIS_MAX_CONCURRENT", 1),
			MaxInputTokens:   getIntConfigValue(*analysisInputTokens, "ANALYSIS_INPUT_TOKENS", 3700),
			Temperature:      getFloatConfigValue(*analysisTemperature, "ANALYSIS_TEMPERATURE", 0.01),
			MaxBatchFailures: getIntConfigValue(*analysisMaxBatchFailures, "ANALYSIS_MAX_BATCH_FAILURES", 3),
		},
	}

	// Parse model timeouts.
	modelTimeoutStr := getConfigValue(*modelTimeout, "MODEL_TIMEOUT", "5m")
	modelTimeoutDuration, err := time.ParseDuration(modelTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid model timeout %q: %w", modelTimeoutStr, err)
	}
	cfg.Model.RequestTimeout = modelTimeoutDuration

	healthTimeoutStr := getConfigValue("", "MODEL_HEALTH_TIMEOUT", "5s")
	healthTimeoutDuration, err := time.ParseDuration(healthTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid model health timeout %q: %w", healthTimeoutStr, err)
	}
	cfg.Model.HealthTimeout = healthTimeoutDuration

	// Parse analysis supervised threshold.
	thresholdStr := getConfigValue(*supervisedThreshold, "SUPERVISED_THRESHOLD", "60s")
	thresholdDuration, err := time.ParseDuration(thresholdStr)
	if err != nil {
		return nil, fmt.Errorf("invalid supervised threshold %q: %w", thresholdStr, err)
	}
	cfg.Analysis.SupervisedThreshold = thresholdDuration

	// Parse server timeouts.
	readTimeoutStr := getConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s")
	readTimeoutDuration, err := time.ParseDuration(readTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid read timeout %q: %w", readTimeoutStr, err)
	}
	cfg.Server.ReadTimeout = readTimeoutDuration

	writeTimeoutStr := getConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s")
	writeTimeoutDuration, err := time.ParseDuration(writeTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid write timeout %q: %w", writeTimeoutStr, err)
	}
	cfg.Server.WriteTimeout = writeTimeoutDuration

	idleTimeoutStr := getConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s")
	idleTimeoutDuration, err := time.ParseDuration(idleTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid idle timeout %q: %w", idleTimeoutStr, err)
	}
	cfg.Server.IdleTimeout = idleTimeoutDuration

	// Expand and validate data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Expand and validate ebook path.
	if err := cfg.expandEbookPath(); err != nil {
		return nil, fmt.Errorf("invalid ebook path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	validBackends := map[string]bool{
		"llama":  true,
		"openai": true,
	}
	if !validBackends[c.Model.Backend] {
		return fmt.Errorf("invalid model backend: %s (must be llama or openai)", c.Model.Backend)
	}

	if c.Model.Backend == "openai" && c.Model.Name == "" {
		return errors.New("MODEL_NAME is required for the openai backend")
	}

	if c.Model.RateLimit <= 0 {
		return fmt.Errorf("invalid model rate limit: %g (must be positive)", c.Model.RateLimit)
	}

	if c.Model.RateBurst < 1 {
		return fmt.Errorf("invalid model rate burst: %d (must be at least 1)", c.Model.RateBurst)
	}

	if c.Analysis.MaxConcurrent < 1 {
		return fmt.Errorf("invalid analysis max concurrent: %d (must be at least 1)", c.Analysis.MaxConcurrent)
	}

	if c.Analysis.SupervisedThreshold <= 0 {
		return errors.New("supervised threshold must be positive")
	}

	if c.Analysis.MaxInputTokens < 1 {
		return fmt.Errorf("invalid analysis input token budget: %d (must be positive)", c.Analysis.MaxInputTokens)
	}

	if c.Analysis.Temperature < 0 || c.Analysis.Temperature > 2 {
		return fmt.Errorf("invalid analysis temperature: %g (must be between 0 and 2)", c.Analysis.Temperature)
	}

	if c.Analysis.MaxBatchFailures < 0 {
		return fmt.Errorf("invalid analysis max batch failures: %d (zero disables the cutoff)", c.Analysis.MaxBatchFailures)
	}

	// EbookPath can be empty - books can be imported via the API.

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "VoxBook", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// expandEbookPath expands ~ and makes the path absolute.
// If empty, leaves it empty to disable folder watching.
func (c *Config) expandEbookPath() error {
	if c.Library.EbookPath == "" {
		return nil
	}

	expanded, err := expandPath(c.Library.EbookPath, "")
	if err != nil {
		return err
	}
	c.Library.EbookPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
