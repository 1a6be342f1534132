// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration system.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/seumter-tools/registry-archiver/internal/config"
	"github.com/seumter-tools/registry-archiver/internal/logging"
)

// InitConfig initializes the application's configuration using Viper.
// It sets up default values, defines configuration search paths, and enables
// reading from environment variables. This function is designed to be called
// once at application startup to ensure that configuration is loaded and
// available to all other packages. A non-empty path pins the config file
// location instead of searching the standard directories.
func InitConfig(path string) {
	// --- Set Search Paths ---
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")                        // Current working directory
		viper.AddConfigPath("/etc/registry-archiver/")  // System-wide configuration
		viper.AddConfigPath("$HOME/.registry-archiver") // User-specific configuration
	}

	// --- Set Defaults ---
	config.SetDefaults(viper.GetViper())

	// --- Environment Variables ---
	viper.SetEnvPrefix("SEUMTER") // e.g., SEUMTER_CRAWL_CHUNK_SIZE=25
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.BindLegacyEnv(viper.GetViper())

	// --- Read Config File ---
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; this is not a fatal error if we can proceed
			// with defaults and environment variables.
			logging.L.Warn("Config file not found; using defaults and environment variables.")
		} else {
			// A real error occurred while parsing the config file.
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
