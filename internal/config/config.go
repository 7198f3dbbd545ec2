package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/quorum.yaml"

type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Agents       AgentsConfig       `yaml:"agents"`
	LLM          LLMConfig          `yaml:"llm"`
	Credentials  CredentialsConfig  `yaml:"credentials"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	NATS         NATSConfig         `yaml:"nats"`
	Store        StoreConfig        `yaml:"store"`
	Web          WebConfig          `yaml:"web"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Vault        VaultConfig        `yaml:"vault"`
	Log          LogConfig          `yaml:"log"`

	// Path is the file the config was read from, empty if none.
	Path string `yaml:"-"`
}

type OrchestratorConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	PublicURL   string `yaml:"public_url"`
}

// AgentsConfig holds the base URLs of the specialist services.
type AgentsConfig struct {
	Research  string        `yaml:"research"`
	Explainer string        `yaml:"explainer"`
	Knowledge string        `yaml:"knowledge"`
	Timeout   time.Duration `yaml:"timeout"`
	SendToken bool          `yaml:"send_token"`
}

type LLMConfig struct {
	Provider   string `yaml:"provider"` // openai, openrouter, azure, anthropic, bedrock
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	APIVersion string `yaml:"api_version"`
	Deployment string `yaml:"deployment"`
	MaxTokens  int    `yaml:"max_tokens"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"`

	RouterTemperature float64 `yaml:"router_temperature"`
	SynthTemperature  float64 `yaml:"synth_temperature"`
}

type CredentialsConfig struct {
	Kind         string   `yaml:"kind"` // none, static, client_credentials
	Token        string   `yaml:"token"`
	TenantID     string   `yaml:"tenant_id"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

type KnowledgeConfig struct {
	Name          string  `yaml:"name"`
	Host          string  `yaml:"host"`
	Port          int     `yaml:"port"`
	MinSimilarity float64 `yaml:"min_similarity"`
	Limit         int     `yaml:"limit"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
	// URL, when set, is an external server used instead of the embedded one.
	URL string `yaml:"url"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Auth        string   `yaml:"auth"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() Config {
	return Config{
		Orchestrator: OrchestratorConfig{
			Name:        "orchestrator-agent",
			Description: "Main orchestrator for multi-agent AI system",
			Version:     "1.0.0",
			Host:        "0.0.0.0",
			Port:        8000,
		},
		Agents: AgentsConfig{
			Research:  "http://localhost:8001",
			Explainer: "http://localhost:8002",
			Knowledge: "http://localhost:8003",
			Timeout:   60 * time.Second,
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4o",
			APIVersion:        "2024-08-01-preview",
			MaxTokens:         4096,
			RouterTemperature: 0.1,
			SynthTemperature:  0.3,
		},
		Credentials: CredentialsConfig{
			Kind: "none",
		},
		Knowledge: KnowledgeConfig{
			Name:          "knowledge-agent",
			Host:          "0.0.0.0",
			Port:          8003,
			MinSimilarity: 0.5,
			Limit:         5,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Store: StoreConfig{
			Path: "data/quorum.db",
		},
		Web: WebConfig{
			CORSOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads .env files, the YAML config and environment overrides, in that
// order of increasing precedence.
func Load() (*Config, error) {
	loadDotEnv()

	path := os.Getenv("QUORUM_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile is Load without the .env step and with an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		cfg.Path = path
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv() {
	// Missing files are fine; the process env still applies.
	_ = godotenv.Load(".env")
	if env := os.Getenv("QUORUM_ENV"); env != "" {
		_ = godotenv.Overload(".env." + env)
	}
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "openrouter", "azure", "anthropic", "bedrock":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	switch c.Credentials.Kind {
	case "", "none", "static", "client_credentials":
	default:
		return fmt.Errorf("unsupported credentials kind %q", c.Credentials.Kind)
	}
	if c.Agents.Timeout <= 0 {
		return fmt.Errorf("agents.timeout must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("QUORUM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.Port = port
		}
	}
	if v := os.Getenv("QUORUM_PUBLIC_URL"); v != "" {
		cfg.Orchestrator.PublicURL = v
	}
	if v := os.Getenv("RESEARCH_AGENT_URL"); v != "" {
		cfg.Agents.Research = v
	}
	if v := os.Getenv("EXPLAINER_AGENT_URL"); v != "" {
		cfg.Agents.Explainer = v
	}
	if v := os.Getenv("KNOWLEDGE_AGENT_URL"); v != "" {
		cfg.Agents.Knowledge = v
	}
	if v := os.Getenv("QUORUM_AGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agents.Timeout = d
		}
	}
	if v := os.Getenv("QUORUM_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("QUORUM_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("QUORUM_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(cfg.LLM.Provider)
	}
	if v := os.Getenv("AZURE_OPENAI_ENDPOINT"); v != "" && cfg.LLM.Provider == "azure" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("AZURE_OPENAI_DEPLOYMENT"); v != "" {
		cfg.LLM.Deployment = v
	}
	if v := os.Getenv("AZURE_TENANT_ID"); v != "" {
		cfg.Credentials.TenantID = v
	}
	if v := os.Getenv("AZURE_CLIENT_ID"); v != "" {
		cfg.Credentials.ClientID = v
	}
	if v := os.Getenv("AZURE_CLIENT_SECRET"); v != "" {
		cfg.Credentials.ClientSecret = v
	}
	if v := os.Getenv("QUORUM_KNOWLEDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Knowledge.Port = port
		}
	}
	if v := os.Getenv("QUORUM_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("QUORUM_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("QUORUM_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("QUORUM_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("QUORUM_CORS_ORIGINS"); v != "" {
		cfg.Web.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("QUORUM_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
	if v := os.Getenv("QUORUM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("QUORUM_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func providerKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	case "azure":
		return os.Getenv("AZURE_OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// ListenAddr returns host:port for the orchestrator.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Orchestrator.Host, c.Orchestrator.Port)
}

// URL is the address advertised in the orchestrator's agent card.
func (c *Config) URL() string {
	if c.Orchestrator.PublicURL != "" {
		return c.Orchestrator.PublicURL
	}
	return fmt.Sprintf("http://localhost:%d", c.Orchestrator.Port)
}
