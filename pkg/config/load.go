package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load reads the first .env-style file found among envFilePath (searched upward
// from the working directory), then the process environment.
func Load(envFilePath ...string) (*App, error) {
	logger := slog.Default()

	if len(envFilePath) == 0 {
		if err := godotenv.Load(); err != nil {
			logger.Debug("No .env file found in current directory")
		}
		return loadFromEnv(logger)
	}

	for _, path := range envFilePath {
		foundPath, err := FindEnvFile(path)
		if err != nil {
			logger.Debug("Environment file not found", "path", path, "error", err)
			continue
		}
		if err := godotenv.Load(foundPath); err != nil {
			logger.Error("Failed to load environment file", "path", foundPath, "error", err)
			continue
		}
		logger.Info("Loaded environment file", "path", foundPath)
		return loadFromEnv(logger)
	}

	logger.Debug("No environment file found, using process environment")
	return loadFromEnv(logger)
}

func loadFromEnv(logger *slog.Logger) (*App, error) {
	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}

	logger.Info("App config loaded",
		"env", cfg.Env,
		"db", maskValue(cfg.DB.URL),
		"redis", maskValue(cfg.Redis.URL),
		"kafka_enabled", cfg.Kafka.Brokers != "",
		"messaging_driver", cfg.Messaging.Driver,
		"messaging_timeout", cfg.Messaging.Timeout,
		"settlement_pool_policy", cfg.SettlementPool.Policy,
		"rate_usd_eur", cfg.Rates.USDEUR.String(),
		"rate_eur_usd", cfg.Rates.EURUSD.String(),
		"sweep_enabled", cfg.Sweep.Enabled,
	)
	return &cfg, nil
}

func maskValue(key string) string {
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}

// FindEnvFile searches for filename (default .env) from the working directory upward.
func FindEnvFile(filename string) (string, error) {
	if filename == "" {
		filename = ".env"
	}
	curr, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(curr, filename)
		if _, err = os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(curr)
		if parent == curr {
			break
		}
		curr = parent
	}
	return "", os.ErrNotExist
}
