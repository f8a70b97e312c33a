package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Backend  struct {
		BaseURL         string `json:"base_url"`
		APIKey          string `json:"api_key"`
		IdleTimeoutSecs int    `json:"idle_timeout_secs"`
		Model           string `json:"model"`
		MaxInputTokens  int    `json:"max_input_tokens"`
	} `json:"backend"`
	Telegram struct {
		Token       string `json:"token"`
		APIEndpoint string `json:"api_endpoint"`
	} `json:"telegram"`
	Discovery struct {
		IntervalSecs int    `json:"interval_secs"`
		StateFile    string `json:"state_file"`
		Greeting     string `json:"greeting"`
	} `json:"discovery"`
	Retry struct {
		MaxAttempts int `json:"max_attempts"`
		DelaySecs   int `json:"delay_secs"`
	} `json:"retry"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".bridgebot"),
		LogLevel: "info",
	}
	cfg.Backend.BaseURL = "http://localhost:8000"
	cfg.Backend.IdleTimeoutSecs = 30
	cfg.Backend.Model = "gpt-4o"
	cfg.Discovery.IntervalSecs = 30
	cfg.Retry.MaxAttempts = 6
	cfg.Retry.DelaySecs = 10

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if baseURL := os.Getenv("BACKEND_BASE_URL"); baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if apiKey := os.Getenv("BACKEND_API_KEY"); apiKey != "" {
		cfg.Backend.APIKey = apiKey
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return cfg, nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
