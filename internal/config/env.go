package config

import (
	"os"
	"strings"
)

const apiKeyEnvPrefix = "THREAD_SERVICE_API_KEYS_"

// ApplyAPIKeysFromEnv populates cfg.APIKeys from THREAD_SERVICE_API_KEYS_<USER_ID>
// environment variables. The suffix is lowercased to form the user ID; the value
// is the key clients present as a bearer token.
func (c *Config) ApplyAPIKeysFromEnv() {
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, apiKeyEnvPrefix) {
			continue
		}
		userID := strings.ToLower(strings.TrimPrefix(name, apiKeyEnvPrefix))
		if userID == "" || value == "" {
			continue
		}
		if c.APIKeys == nil {
			c.APIKeys = map[string]string{}
		}
		c.APIKeys[value] = userID
	}
}
