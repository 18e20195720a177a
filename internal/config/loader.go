package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches standard locations for
// accountgate.yaml/.yml. The search requires an explicit YAML extension so
// the binary itself (same base name, no extension) is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("accountgate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: ACCOUNTGATE_BACKEND_HTTP_BASE_URL
	viper.SetEnvPrefix("ACCOUNTGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an accountgate config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".accountgate"),
		"/etc/accountgate",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "accountgate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Example: ACCOUNTGATE_SERVER_LISTEN_ADDR overrides server.listen_addr
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.listen_addr")
	_ = viper.BindEnv("server.metrics_addr")

	_ = viper.BindEnv("backend.http_base_url")
	_ = viper.BindEnv("backend.socket_url")
	_ = viper.BindEnv("backend.transport")
	_ = viper.BindEnv("backend.service_key")
	_ = viper.BindEnv("backend.timeout")

	_ = viper.BindEnv("auth.account_param")
	_ = viper.BindEnv("auth.session_cookie")
	_ = viper.BindEnv("auth.refresh_redirect_base")
	_ = viper.BindEnv("auth.permission_expr")

	_ = viper.BindEnv("dev_mode")
}
