package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	validator "gopkg.in/go-playground/validator.v9"
)

// Config is the rstreams-metrics CLI configuration.
type Config struct {
	LogLevel string `json:"log_level" validate:"required"`
	SecretID string `json:"secret_id" validate:"required"`

	// Reporters is used as-is when set; otherwise the reporter
	// configuration is fetched from the secret named by SecretID.
	Reporters *ReporterConfigs `json:"reporters"`
}

// ReporterConfigs selects and configures the metric reporters. It is also
// the JSON shape of the shared metrics secret.
type ReporterConfigs struct {
	AWS             *AWSConfig     `json:"AWS,omitempty"`
	DataDog         *DataDogConfig `json:"DataDog,omitempty"`
	Stdout          *StdoutConfig  `json:"Stdout,omitempty"`
	DontSendMetrics bool           `json:"dontSendMetrics,omitempty"`
}

type AWSConfig struct {
	Region    string `json:"region,omitempty"`
	Namespace string `json:"namespace,omitempty" validate:"omitempty,max=255"`
}

type DataDogConfig struct {
	APIKey        string `json:"apiKey,omitempty"`
	Key           string `json:"key,omitempty"`
	APIKeyKMS     string `json:"apiKeyKMS,omitempty"`
	Site          string `json:"site,omitempty" validate:"omitempty,hostname"`
	SiteURL       string `json:"siteURL,omitempty" validate:"omitempty,hostname"`
	LogForwarding *bool  `json:"logForwarding,omitempty"`
}

type StdoutConfig struct{}

const defaultConfig = `
{
	"log_level": "INFO",
	"secret_id": "GlobalRSFMetricConfigs"
}
`

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	var config Config
	json.Unmarshal([]byte(defaultConfig), &config) // Parse defaults
	return &config
}

func LoadConfig(configFile string) (*Config, error) {
	config := DefaultConfig()

	if configFile == "" {
		return config, errors.New("Must provide a config file")
	}

	bytes, err := os.ReadFile(configFile)
	if err != nil {
		return config, err
	}

	if err = json.Unmarshal(bytes, config); err != nil {
		return config, err
	}

	if err = config.Validate(); err != nil {
		return config, fmt.Errorf("Validating config contents: %s", err)
	}

	return config, nil
}

func (c Config) Validate() error {
	validate := validator.New()

	return validate.Struct(c)
}

// ParseReporterConfigs decodes and validates a JSON reporter configuration.
func ParseReporterConfigs(data []byte) (*ReporterConfigs, error) {
	var configs ReporterConfigs
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, err
	}
	if err := configs.Validate(); err != nil {
		return nil, fmt.Errorf("Validating reporter configs: %s", err)
	}
	return &configs, nil
}

func (c ReporterConfigs) Validate() error {
	validate := validator.New()

	return validate.Struct(c)
}
