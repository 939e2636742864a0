package utils

import (
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// MetricEnvPrefix is the secondary prefix checked for every environment
// variable: X is looked up first, then RSTREAMS_METRICS_X.
const MetricEnvPrefix = "RSTREAMS_METRICS_"

// RemoveColon replaces every ':' so a value can be joined as key:value.
func RemoveColon(value string) string {
	return strings.ReplaceAll(value, ":", "_")
}

// NewEnvLookuper returns the process environment lookuper with the
// MetricEnvPrefix fallback.
func NewEnvLookuper() envconfig.Lookuper {
	return WithMetricPrefix(envconfig.OsLookuper())
}

// WithMetricPrefix wraps l so a missing key is retried with MetricEnvPrefix.
func WithMetricPrefix(l envconfig.Lookuper) envconfig.Lookuper {
	return envconfig.MultiLookuper(l, envconfig.PrefixLookuper(MetricEnvPrefix, l))
}

// GetEnvValue returns the value of key, or defaultValue when neither key nor
// its prefixed form is set.
func GetEnvValue(l envconfig.Lookuper, key, defaultValue string) string {
	if val, ok := l.Lookup(key); ok {
		return val
	}
	return defaultValue
}

// FirstNonEmpty returns the first non-empty value of the given keys.
func FirstNonEmpty(l envconfig.Lookuper, keys ...string) string {
	for _, key := range keys {
		if val := GetEnvValue(l, key, ""); val != "" {
			return val
		}
	}
	return ""
}
