package testhelpers

import (
	"encoding/json"
	"os"

	"github.com/alphagov/paas-rstreams-metrics/pkg/config"
	. "github.com/onsi/gomega"
)

// BuildTempConfigFile writes a CLI config using reporters and returns its
// path.
func BuildTempConfigFile(logLevel string, reporters *config.ReporterConfigs) (configFilePath string) {
	rstreamsMetricsConfig := config.Config{
		LogLevel:  logLevel,
		SecretID:  config.DefaultSecretID,
		Reporters: reporters,
	}
	temporaryConfigFile, err := os.CreateTemp("", "rstreams-metrics-config-")
	Expect(err).ToNot(HaveOccurred())
	defer temporaryConfigFile.Close()

	configJSON, err := json.Marshal(rstreamsMetricsConfig)
	Expect(err).ToNot(HaveOccurred())
	_, err = temporaryConfigFile.Write(configJSON)
	Expect(err).ToNot(HaveOccurred())
	return temporaryConfigFile.Name()
}
