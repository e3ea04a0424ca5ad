package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvWhisperPath       = "VOXJSON_WHISPER_PATH"
	EnvOpenAIWhisperPath = "VOXJSON_OPENAI_WHISPER_PATH"
)

// Config holds the defaults for every command line flag. Values from the
// file replace built-in defaults; flags given on the command line win.
type Config struct {
	Model             string `yaml:"model"`
	Language          string `yaml:"language"`
	Engine            string `yaml:"engine"`
	ModelDir          string `yaml:"model_dir"`
	AutoDownload      bool   `yaml:"auto_download"`
	WhisperCLIPath    string `yaml:"whisper_cli_path"`
	OpenAIWhisperPath string `yaml:"openai_whisper_path"`
}

func Default() Config {
	return Config{
		Model:        "large-v3-turbo",
		Language:     "ko",
		Engine:       "auto",
		AutoDownload: true,
	}
}

// Load reads path on top of the defaults. A missing file is only an error
// when the caller asked for it explicitly.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv lets the environment override engine locations.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvWhisperPath)); v != "" {
		c.WhisperCLIPath = v
	}
	if v := strings.TrimSpace(getenv(EnvOpenAIWhisperPath)); v != "" {
		c.OpenAIWhisperPath = v
	}
}
