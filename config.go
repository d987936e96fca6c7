package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration.
// Priority (lowest → highest): defaults < .env file < env vars < JSON config file < CLI flags.
type AppConfig struct {
	// Server
	DB   string `json:"db"`   // database connection string
	Dev  bool   `json:"dev"`  // dev mode: verbose logging, db dumps on errors
	Addr string `json:"addr"` // HTTP listen address ("" disables the API)

	// Logging (extended diagnostics, off by default)
	LogOutputDir string `json:"log_output_dir"`
	LogRequests  bool   `json:"log_requests"`
	LogDB        bool   `json:"log_db"`
	LogWS        bool   `json:"log_ws"`
	LogDebug     bool   `json:"log_debug"`

	// Agents
	AgentProvider    string        `json:"agent_provider"`    // random | ollama | openai | claude | gemini | groq | openrouter | openai-compatible
	AgentModel       string        `json:"agent_model"`       // default model for every seat
	AgentOllamaURL   string        `json:"agent_ollama_url"`  // Ollama server URL
	AgentURL         string        `json:"agent_url"`         // base URL for openai-compatible
	AgentAPIKey      string        `json:"agent_api_key"`     // API key for openai-compatible
	AgentTemperature string        `json:"agent_temperature"` // float 0-1 as string, overrides the per-task default
	AgentThinking    string        `json:"agent_thinking"`    // none | low | medium | high | auto
	AgentRetries     int           `json:"agent_retries"`     // retries after the first attempt
	AgentRPS         float64       `json:"agent_rps"`         // requests per second across all seats, 0 = unlimited
	AgentTimeout     time.Duration `json:"agent_timeout"`     // per request
	GroqAPIKey       string        `json:"groq_api_key"`
	OpenRouterAPIKey string        `json:"openrouter_api_key"`

	// Game
	Roles            string        `json:"roles"` // e.g. villager=3,werewolf=1,seer=1
	DiscussionRounds int           `json:"discussion_rounds"`
	PoolsFile        string        `json:"pools_file"` // YAML persona pools
	Seed             int64         `json:"seed"`       // 0 = time based
	Autoplay         bool          `json:"autoplay"`
	AutoplayInterval time.Duration `json:"autoplay_interval"`
	Console          bool          `json:"console"`
}

func (cfg AppConfig) toLogConfig() LogConfig {
	return LogConfig{
		OutputDir:   cfg.LogOutputDir,
		LogRequests: cfg.LogRequests,
		LogDB:       cfg.LogDB,
		LogWS:       cfg.LogWS,
		Debug:       cfg.LogDebug,
	}
}

func defaultConfig() AppConfig {
	return AppConfig{
		DB:               "file::memory:?cache=shared",
		Addr:             ":8080",
		AgentProvider:    "random",
		AgentOllamaURL:   "http://localhost:11434",
		AgentRetries:     3,
		AgentTimeout:     60 * time.Second,
		Roles:            defaultRoleCounts().String(),
		DiscussionRounds: defaultDiscussionRounds,
		AutoplayInterval: 2 * time.Second,
	}
}

// loadConfig builds a config by layering: defaults → .env → env vars → JSON config file.
// CLI flag overrides are applied separately by flagValues.applyTo after flag.Parse.
func loadConfig(configPath, envPath string) AppConfig {
	cfg := defaultConfig()

	// Layer 1: .env, which never overrides variables already set in the process
	if envPath != "" {
		if err := godotenv.Load(envPath); err == nil {
			log.Printf("Config: loaded environment from %s", envPath)
		} else if !os.IsNotExist(err) {
			log.Printf("Config: failed to read %s: %v", envPath, err)
		}
	}

	// Layer 2: env vars
	envStr := os.Getenv
	envBool := func(key string) (val bool, set bool) {
		v := os.Getenv(key)
		if v == "" {
			return false, false
		}
		return v == "1" || v == "true" || v == "yes", true
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				log.Printf("Config: invalid %s=%q: %v", key, v, err)
			}
		}
	}
	envDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			} else {
				log.Printf("Config: invalid %s=%q: %v", key, v, err)
			}
		}
	}

	if v := envStr("DB"); v != "" {
		cfg.DB = v
	}
	if v, ok := envBool("DEV"); ok {
		cfg.Dev = v
	}
	if v, ok := os.LookupEnv("ADDR"); ok {
		cfg.Addr = v
	}
	if v := envStr("LOG_OUTPUT_DIR"); v != "" {
		cfg.LogOutputDir = v
	}
	if v, ok := envBool("LOG_REQUESTS"); ok {
		cfg.LogRequests = v
	}
	if v, ok := envBool("LOG_DB"); ok {
		cfg.LogDB = v
	}
	if v, ok := envBool("LOG_WS"); ok {
		cfg.LogWS = v
	}
	if v, ok := envBool("LOG_DEBUG"); ok {
		cfg.LogDebug = v
	}
	if v := envStr("AGENT_PROVIDER"); v != "" {
		cfg.AgentProvider = v
	}
	if v := envStr("AGENT_MODEL"); v != "" {
		cfg.AgentModel = v
	}
	if v := envStr("AGENT_OLLAMA_URL"); v != "" {
		cfg.AgentOllamaURL = v
	}
	if v := envStr("AGENT_URL"); v != "" {
		cfg.AgentURL = v
	}
	if v := envStr("AGENT_API_KEY"); v != "" {
		cfg.AgentAPIKey = v
	}
	if v := envStr("AGENT_TEMPERATURE"); v != "" {
		cfg.AgentTemperature = v
	}
	if v := envStr("AGENT_THINKING"); v != "" {
		cfg.AgentThinking = v
	}
	envInt("AGENT_RETRIES", &cfg.AgentRetries)
	if v := envStr("AGENT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.AgentRPS = f
		} else {
			log.Printf("Config: invalid AGENT_RPS=%q: %v", v, err)
		}
	}
	envDuration("AGENT_TIMEOUT", &cfg.AgentTimeout)
	if v := envStr("GROQ_API_KEY"); v != "" {
		cfg.GroqAPIKey = v
	}
	if v := envStr("OPENROUTER_API_KEY"); v != "" {
		cfg.OpenRouterAPIKey = v
	}
	if v := envStr("ROLES"); v != "" {
		cfg.Roles = v
	}
	envInt("DISCUSSION_ROUNDS", &cfg.DiscussionRounds)
	if v := envStr("POOLS_FILE"); v != "" {
		cfg.PoolsFile = v
	}
	if v := envStr("SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		} else {
			log.Printf("Config: invalid SEED=%q: %v", v, err)
		}
	}
	if v, ok := envBool("AUTOPLAY"); ok {
		cfg.Autoplay = v
	}
	envDuration("AUTOPLAY_INTERVAL", &cfg.AutoplayInterval)
	if v, ok := envBool("CONSOLE"); ok {
		cfg.Console = v
	}

	// Layer 3: JSON config file, only fields present in the file override env vars
	if data, err := os.ReadFile(configPath); err == nil {
		var overlay map[string]json.RawMessage
		if err := json.Unmarshal(data, &overlay); err != nil {
			log.Printf("Config: failed to parse %s: %v", configPath, err)
		} else {
			applyJSONOverlay(&cfg, overlay)
			log.Printf("Config: loaded from %s", configPath)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Config: failed to read %s: %v", configPath, err)
	}

	return cfg
}

// applyJSONOverlay only sets fields that are explicitly present in the JSON map.
// Durations are written as strings ("2s", "1m30s").
func applyJSONOverlay(cfg *AppConfig, m map[string]json.RawMessage) {
	value := func(key string, dst any) {
		if v, ok := m[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				log.Printf("Config: invalid %s: %v", key, err)
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		var s string
		if _, ok := m[key]; !ok {
			return
		}
		value(key, &s)
		if d, err := time.ParseDuration(s); err == nil {
			*dst = d
		} else {
			log.Printf("Config: invalid %s=%q: %v", key, s, err)
		}
	}

	value("db", &cfg.DB)
	value("dev", &cfg.Dev)
	value("addr", &cfg.Addr)
	value("log_output_dir", &cfg.LogOutputDir)
	value("log_requests", &cfg.LogRequests)
	value("log_db", &cfg.LogDB)
	value("log_ws", &cfg.LogWS)
	value("log_debug", &cfg.LogDebug)
	value("agent_provider", &cfg.AgentProvider)
	value("agent_model", &cfg.AgentModel)
	value("agent_ollama_url", &cfg.AgentOllamaURL)
	value("agent_url", &cfg.AgentURL)
	value("agent_api_key", &cfg.AgentAPIKey)
	value("agent_temperature", &cfg.AgentTemperature)
	value("agent_thinking", &cfg.AgentThinking)
	value("agent_retries", &cfg.AgentRetries)
	value("agent_rps", &cfg.AgentRPS)
	duration("agent_timeout", &cfg.AgentTimeout)
	value("groq_api_key", &cfg.GroqAPIKey)
	value("openrouter_api_key", &cfg.OpenRouterAPIKey)
	value("roles", &cfg.Roles)
	value("discussion_rounds", &cfg.DiscussionRounds)
	value("pools_file", &cfg.PoolsFile)
	value("seed", &cfg.Seed)
	value("autoplay", &cfg.Autoplay)
	duration("autoplay_interval", &cfg.AutoplayInterval)
	value("console", &cfg.Console)
}

// flagValues holds pointers to all registered CLI flags.
type flagValues struct {
	configPath       *string
	envPath          *string
	db               *string
	dev              *bool
	addr             *string
	logOutputDir     *string
	logRequests      *bool
	logDB            *bool
	logWS            *bool
	logDebug         *bool
	agentProvider    *string
	agentModel       *string
	agentOllamaURL   *string
	agentURL         *string
	agentAPIKey      *string
	agentTemperature *string
	agentThinking    *string
	agentRetries     *int
	agentRPS         *float64
	agentTimeout     *time.Duration
	groqAPIKey       *string
	openRouterAPIKey *string
	roles            *string
	discussionRounds *int
	poolsFile        *string
	seed             *int64
	autoplay         *bool
	autoplayInterval *time.Duration
	console          *bool
}

// registerFlags registers all CLI flags on fs and returns pointers to their values.
// Parse fs after this, then applyTo to layer them over the loaded config.
func registerFlags(fs *flag.FlagSet) flagValues {
	return flagValues{
		configPath:       fs.String("config", "config.json", "path to JSON config file"),
		envPath:          fs.String("env", ".env", "path to .env file"),
		db:               fs.String("db", "", "database connection string"),
		dev:              fs.Bool("dev", false, "enable development mode (verbose logging, db dumps on error)"),
		addr:             fs.String("addr", "", "HTTP listen address (e.g. :8080)"),
		logOutputDir:     fs.String("log-output-dir", "", "directory for extended log files"),
		logRequests:      fs.Bool("log-requests", false, "log HTTP and model requests and responses"),
		logDB:            fs.Bool("log-db", false, "log database dumps"),
		logWS:            fs.Bool("log-ws", false, "log WebSocket messages"),
		logDebug:         fs.Bool("log-debug", false, "enable debug logging"),
		agentProvider:    fs.String("agent-provider", "", "agent provider (random|ollama|openai|claude|gemini|groq|openrouter|openai-compatible)"),
		agentModel:       fs.String("agent-model", "", "default model name for every seat"),
		agentOllamaURL:   fs.String("agent-ollama-url", "", "Ollama server URL"),
		agentURL:         fs.String("agent-url", "", "base URL for openai-compatible provider"),
		agentAPIKey:      fs.String("agent-api-key", "", "API key for openai-compatible provider"),
		agentTemperature: fs.String("agent-temperature", "", "sampling temperature 0-1"),
		agentThinking:    fs.String("agent-thinking", "", "thinking mode: none|low|medium|high|auto"),
		agentRetries:     fs.Int("agent-retries", 0, "retries per decision after the first attempt"),
		agentRPS:         fs.Float64("agent-rps", 0, "model requests per second, 0 = unlimited"),
		agentTimeout:     fs.Duration("agent-timeout", 0, "timeout per model request"),
		groqAPIKey:       fs.String("groq-api-key", "", "Groq API key"),
		openRouterAPIKey: fs.String("openrouter-api-key", "", "OpenRouter API key"),
		roles:            fs.String("roles", "", "role counts, e.g. villager=3,werewolf=1,seer=1"),
		discussionRounds: fs.Int("discussion-rounds", 0, "discussion rounds per day"),
		poolsFile:        fs.String("pools-file", "", "YAML file with name, avatar and personality pools"),
		seed:             fs.Int64("seed", 0, "random seed, 0 = time based"),
		autoplay:         fs.Bool("autoplay", false, "advance the game on a timer"),
		autoplayInterval: fs.Duration("autoplay-interval", 0, "delay between autoplay steps"),
		console:          fs.Bool("console", false, "start the interactive console"),
	}
}

// applyTo overlays any CLI flags that were explicitly set onto cfg.
// Flags that were not passed on the command line are ignored (env/JSON values win).
func (fv flagValues) applyTo(fs *flag.FlagSet, cfg *AppConfig) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.DB = *fv.db
		case "dev":
			cfg.Dev = *fv.dev
		case "addr":
			cfg.Addr = *fv.addr
		case "log-output-dir":
			cfg.LogOutputDir = *fv.logOutputDir
		case "log-requests":
			cfg.LogRequests = *fv.logRequests
		case "log-db":
			cfg.LogDB = *fv.logDB
		case "log-ws":
			cfg.LogWS = *fv.logWS
		case "log-debug":
			cfg.LogDebug = *fv.logDebug
		case "agent-provider":
			cfg.AgentProvider = *fv.agentProvider
		case "agent-model":
			cfg.AgentModel = *fv.agentModel
		case "agent-ollama-url":
			cfg.AgentOllamaURL = *fv.agentOllamaURL
		case "agent-url":
			cfg.AgentURL = *fv.agentURL
		case "agent-api-key":
			cfg.AgentAPIKey = *fv.agentAPIKey
		case "agent-temperature":
			cfg.AgentTemperature = *fv.agentTemperature
		case "agent-thinking":
			cfg.AgentThinking = *fv.agentThinking
		case "agent-retries":
			cfg.AgentRetries = *fv.agentRetries
		case "agent-rps":
			cfg.AgentRPS = *fv.agentRPS
		case "agent-timeout":
			cfg.AgentTimeout = *fv.agentTimeout
		case "groq-api-key":
			cfg.GroqAPIKey = *fv.groqAPIKey
		case "openrouter-api-key":
			cfg.OpenRouterAPIKey = *fv.openRouterAPIKey
		case "roles":
			cfg.Roles = *fv.roles
		case "discussion-rounds":
			cfg.DiscussionRounds = *fv.discussionRounds
		case "pools-file":
			cfg.PoolsFile = *fv.poolsFile
		case "seed":
			cfg.Seed = *fv.seed
		case "autoplay":
			cfg.Autoplay = *fv.autoplay
		case "autoplay-interval":
			cfg.AutoplayInterval = *fv.autoplayInterval
		case "console":
			cfg.Console = *fv.console
		}
	})
}
