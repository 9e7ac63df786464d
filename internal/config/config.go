// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default}. Bare $VAR is left alone
// because CSS attribute selectors use "$=".
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadDotEnv loads .env files into the process environment. Variables
// already set win; missing files are ignored.
func LoadDotEnv(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

// LoadFromFile loads .env files next to the config and in the working
// directory, then parses and validates the YAML file itself.
func LoadFromFile(filename string) (*Config, error) {
	data, err := readConfigFile(filename)
	if err != nil {
		return nil, err
	}
	return LoadFromBytes(data)
}

// ParseFile is LoadFromFile without validation, for callers that want
// ValidateWithDetails.
func ParseFile(filename string) (*Config, error) {
	data, err := readConfigFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func readConfigFile(filename string) ([]byte, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration filename cannot be empty")
	}

	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	LoadDotEnv(".env", filepath.Join(filepath.Dir(filename), ".env"))
	return data, nil
}

// LoadFromBytes parses YAML over the defaults and validates the result
func LoadFromBytes(data []byte) (*Config, error) {
	config, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Parse expands environment references and decodes YAML over Default()
// without validating.
func Parse(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("configuration data cannot be empty")
	}

	config := Default()
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	applyDefaults(config)
	return config, nil
}

// ExpandEnv substitutes ${VAR} and ${VAR:-default} references
func ExpandEnv(content string) string {
	return envPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(groups[1]); ok && value != "" {
			return value
		}
		return groups[2]
	})
}

// applyDefaults fills values that an explicit zero in the file would
// otherwise leave unusable.
func applyDefaults(config *Config) {
	defaults := Default()

	if config.Scroll.StabilityThreshold == 0 {
		config.Scroll.StabilityThreshold = defaults.Scroll.StabilityThreshold
	}
	if config.Scroll.WaitTimeout == 0 {
		config.Scroll.WaitTimeout = defaults.Scroll.WaitTimeout
	}
	config.Scroll.ItemSelector = config.Selectors.Item

	if config.Storage.Type == "" {
		config.Storage.Type = defaults.Storage.Type
	}
	if config.Storage.Range == "" {
		config.Storage.Range = defaults.Storage.Range
	}
	if config.Storage.AdmitCap == 0 {
		config.Storage.AdmitCap = defaults.Storage.AdmitCap
	}

	if config.Browser.NavigationTimeout == 0 {
		config.Browser.NavigationTimeout = defaults.Browser.NavigationTimeout
	}
	if config.Browser.SessionTimeout == 0 {
		config.Browser.SessionTimeout = defaults.Browser.SessionTimeout
	}
	if config.Browser.ViewportWidth == 0 || config.Browser.ViewportHeight == 0 {
		config.Browser.ViewportWidth = defaults.Browser.ViewportWidth
		config.Browser.ViewportHeight = defaults.Browser.ViewportHeight
	}

	if config.Logging.Level == "" {
		config.Logging.Level = defaults.Logging.Level
	}
	if config.Logging.Format == "" {
		config.Logging.Format = defaults.Logging.Format
	}
	if config.Metrics.Namespace == "" {
		config.Metrics.Namespace = defaults.Metrics.Namespace
	}
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
}
