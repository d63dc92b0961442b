/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the orchestration service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisViewCachePrefix    string `mapstructure:"REDIS_VIEW_CACHE_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	IntentEventExchange     string `mapstructure:"INTENT_EVENT_EXCHANGE"`
	MeridianAPIBaseURL      string `mapstructure:"MERIDIAN_API_BASE_URL"`
	MeridianAPIKey          string `mapstructure:"MERIDIAN_API_KEY"`
	JWKSURL                 string `mapstructure:"JWKS_URL"`
	ResolutionDebounceMS    int    `mapstructure:"RESOLUTION_DEBOUNCE_MS"`
	ResolutionStuckAfterSec int    `mapstructure:"RESOLUTION_STUCK_AFTER_SECONDS"`
	ResolutionSweepSchedule string `mapstructure:"RESOLUTION_SWEEP_SCHEDULE"`
	VerificationRefreshMS   int    `mapstructure:"VERIFICATION_REFRESH_DELAY_MS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_VIEW_CACHE_PREFIX", "treegar:views")
	viper.SetDefault("INTENT_EVENT_EXCHANGE", "treegar.events")
	viper.SetDefault("RESOLUTION_DEBOUNCE_MS", 500)
	viper.SetDefault("RESOLUTION_STUCK_AFTER_SECONDS", 60)
	viper.SetDefault("RESOLUTION_SWEEP_SCHEDULE", "@every 1m")
	viper.SetDefault("VERIFICATION_REFRESH_DELAY_MS", 2000)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_VIEW_CACHE_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("INTENT_EVENT_EXCHANGE")
	_ = viper.BindEnv("MERIDIAN_API_BASE_URL")
	_ = viper.BindEnv("MERIDIAN_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("RESOLUTION_DEBOUNCE_MS")
	_ = viper.BindEnv("RESOLUTION_STUCK_AFTER_SECONDS")
	_ = viper.BindEnv("RESOLUTION_SWEEP_SCHEDULE")
	_ = viper.BindEnv("VERIFICATION_REFRESH_DELAY_MS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisViewCachePrefix = strings.TrimSpace(config.RedisViewCachePrefix)
	if config.RedisViewCachePrefix == "" {
		config.RedisViewCachePrefix = "treegar:views"
	}
	config.IntentEventExchange = strings.TrimSpace(config.IntentEventExchange)
	if config.IntentEventExchange == "" {
		config.IntentEventExchange = "treegar.events"
	}

	if config.ResolutionDebounceMS <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive resolution debounce; using default\" debounce_ms=%d", config.ResolutionDebounceMS)
		config.ResolutionDebounceMS = 500
	}
	if config.ResolutionStuckAfterSec <= 0 {
		config.ResolutionStuckAfterSec = 60
	}
	if strings.TrimSpace(config.ResolutionSweepSchedule) == "" {
		config.ResolutionSweepSchedule = "@every 1m"
	}
	if config.VerificationRefreshMS <= 0 {
		config.VerificationRefreshMS = 2000
	}

	return
}
