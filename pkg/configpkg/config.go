// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper from a config file or environment variables.
type Config struct {
	DBDriver            string        `mapstructure:"DB_DRIVER"`
	DBSource            string        `mapstructure:"DB_SOURCE"`
	MigrateOnStart      bool          `mapstructure:"MIGRATE_ON_START"`
	ServerAddress       string        `mapstructure:"SERVER_ADDRESS"`
	TokenSymmetricKey   string        `mapstructure:"TOKEN_SYMMETRIC_KEY"`
	AccessTokenDuration time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	Environement        string        `mapstructure:"GO_ENV"`
	LockTimeout         time.Duration `mapstructure:"LOCK_TIMEOUT"`
	MaxRetryAttempts    int           `mapstructure:"MAX_RETRY_ATTEMPTS"`
	RetryBaseDelay      time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	IdempotencyTTL      time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:8080")
	v.SetDefault("ACCESS_TOKEN_DURATION", 15*time.Minute)
	v.SetDefault("GO_ENV", "production")
	v.SetDefault("LOCK_TIMEOUT", 3*time.Second)
	v.SetDefault("MAX_RETRY_ATTEMPTS", 3)
	v.SetDefault("RETRY_BASE_DELAY", 10*time.Millisecond)
	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)
	v.SetDefault("MIGRATE_ON_START", false)

	// Keys without a default must still be known to viper for AutomaticEnv to
	// populate them during Unmarshal.
	v.SetDefault("DB_SOURCE", "")
	v.SetDefault("TOKEN_SYMMETRIC_KEY", "")
	v.SetDefault("REDIS_URL", "")
}

// Load read configuration from file or environment variables.
//
// A missing app.env file is not an error: environment variables and defaults
// are enough to start the application.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}
