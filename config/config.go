package config

import (
	"encoding/json"
	"os"
	"strconv"
)

// Config structure. Resolved once at startup and passed explicitly to each
// component constructor; components never read the environment themselves.
type Config struct {
	APIKey      string  `json:"apiKey"`
	BaseURL     string  `json:"baseUrl"`
	ModelName   string  `json:"modelName"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`

	DBURL          string `json:"dbUrl"`          // default data source: sqlite path, mysql:// or snowflake:// URL
	ArtifactsDir   string `json:"artifactsDir"`   // chart artifacts are written here
	CheckpointPath string `json:"checkpointPath"` // sqlite file for conversation checkpoints; empty disables
	LogDir         string `json:"logDir"`

	MaxPreviewRows  int    `json:"maxPreviewRows"`  // rows shown in SQL result previews
	FetchTimeoutSec int    `json:"fetchTimeoutSec"` // per-URL timeout for the web checker
	UserAgent       string `json:"userAgent"`
	DetailedLog     bool   `json:"detailedLog"`
}

// Default returns the built-in defaults, matching the original deployment.
func Default() Config {
	return Config{
		ModelName:       "gpt-4o-mini",
		Temperature:     0.2,
		DBURL:           "./demo_sales.db",
		ArtifactsDir:    "./artifacts",
		LogDir:          ".",
		MaxPreviewRows:  10,
		FetchTimeoutSec: 15,
		UserAgent:       "SusanBot/1.0",
	}
}

// Load reads config from a JSON file (missing file is fine), then applies
// SUSAN_* / OPENAI_* environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SUSAN_API_KEY"); v != "" {
		c.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("SUSAN_LLM_MODEL"); v != "" {
		c.ModelName = v
	}
	if v := os.Getenv("SUSAN_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			c.Temperature = float32(f)
		}
	}
	if v := os.Getenv("SUSAN_DB_URL"); v != "" {
		c.DBURL = v
	}
	if v := os.Getenv("SUSAN_ARTIFACTS"); v != "" {
		c.ArtifactsDir = v
	}
	if v := os.Getenv("SUSAN_CHECKPOINTS"); v != "" {
		c.CheckpointPath = v
	}
}
