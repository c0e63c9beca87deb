package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dayuer/haggle-go/internal/utils"
)

// GetConfigPath returns the config file path: $HAGGLE_CONFIG, or ~/.haggle/config.json.
func GetConfigPath() string {
	if p := os.Getenv("HAGGLE_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".haggle", "config.json")
}

// GetDataDir returns the data directory for transcripts, ~/.haggle by default.
func (c Config) GetDataDir() string {
	return utils.DataPath(c.DataDir)
}

type format int

const (
	formatJSON format = iota
	formatYAML
	formatTOML
)

func formatOf(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".toml":
		return formatTOML
	default:
		return formatJSON
	}
}

// Load reads configuration from a JSON, YAML or TOML file chosen by extension.
// If path is empty, uses the default config path.
// If the file doesn't exist, returns DefaultConfig().
// Environment overrides are applied last.
func Load(path string) (Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	cfg := DefaultConfig() // start with defaults so zero-value fields get filled
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnv(&cfg)
			return cfg, nil
		}
		return DefaultConfig(), errors.Wrapf(err, "read %s", path)
	}

	switch formatOf(path) {
	case formatYAML:
		err = yaml.Unmarshal(data, &cfg)
	case formatTOML:
		err = toml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return DefaultConfig(), errors.Wrapf(err, "parse %s", path)
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

// ApplyEnv overrides file values with HAGGLE_* and REDIS_URL variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("HAGGLE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("HAGGLE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("HAGGLE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("HAGGLE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
}

// Save writes configuration in the format implied by the path extension.
// If path is empty, uses the default config path.
func Save(cfg Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	var (
		data []byte
		err  error
	)
	switch formatOf(path) {
	case formatYAML:
		data, err = yaml.Marshal(cfg)
	case formatTOML:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return os.WriteFile(path, data, 0644)
}
