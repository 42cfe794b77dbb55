package config

import (
	"fmt"
	"os"

	"fannotate/internal/llm"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"` // sqlite file for the working dataset
	} `yaml:"database"`

	Codebook struct {
		Path string `yaml:"path"` // codebook JSON file
	} `yaml:"codebook"`

	// Initial engine configuration; the settings endpoint replaces it at
	// runtime.
	Engine llm.EngineConfig `yaml:"engine"`
}

// LoadConfig loads configuration from a YAML file and applies defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	applyDefaults(config)

	// Expand environment variables in secrets.
	config.Engine.APIKey = os.ExpandEnv(config.Engine.APIKey)
	config.Engine.ClientSecret = os.ExpandEnv(config.Engine.ClientSecret)
	config.Engine.TokenURL = os.ExpandEnv(config.Engine.TokenURL)
	config.Engine.GenAIBaseURL = os.ExpandEnv(config.Engine.GenAIBaseURL)

	return config, nil
}

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Server.Port == "" {
		config.Server.Port = "1337"
	}
	if config.Database.Path == "" {
		config.Database.Path = "./data/fannotate.db"
	}
	if config.Codebook.Path == "" {
		config.Codebook.Path = "./data/codebook.json"
	}
	if config.Engine.Framework == "" {
		config.Engine.Framework = llm.FrameworkVLLM
	}
	if config.Engine.BaseURL == "" && config.Engine.Framework == llm.FrameworkVLLM {
		config.Engine.BaseURL = "http://localhost:8000/v1"
	}
	if config.Engine.Model == "" {
		config.Engine.Model = "google/gemma-2-2b-it"
	}
	if config.Engine.MaxTokens == 0 {
		config.Engine.MaxTokens = 500
	}
	if config.Engine.MaxTranscriptLength == 0 {
		config.Engine.MaxTranscriptLength = 500
	}
}
