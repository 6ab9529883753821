package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the service config file.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                string `yaml:"port"`
	LogLevel            string `yaml:"logLevel"`
	DatabaseURL         string `yaml:"databaseURL"`
	AccountServiceURL   string `yaml:"accountServiceURL"`
	InternalTokenSecret string `yaml:"internalTokenSecret"`

	StorageDriver  string `yaml:"storageDriver"` // "minio" or "local"
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioPublicURL string `yaml:"minioPublicURL"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	LocalPath      string `yaml:"localPath"`
	LocalPublicURL string `yaml:"localPublicURL"`
}

// Load reads config from path (defaults to config.yaml). A .env file in
// the working directory is loaded first so YAML values can be overridden
// per environment.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()

	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("CATALOG_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("ACCOUNT_SERVICE_URL"); v != "" {
		cfg.AccountServiceURL = v
	}
	if v := os.Getenv("BOOKBAZAAR_INTERNAL_TOKEN_SECRET"); v != "" {
		cfg.InternalTokenSecret = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_PUBLIC_URL"); v != "" {
		cfg.MinioPublicURL = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if useSSL, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = useSSL
		}
	}
	if v := os.Getenv("LOCAL_STORAGE_PATH"); v != "" {
		cfg.LocalPath = v
	}
	if v := os.Getenv("LOCAL_STORAGE_PUBLIC_URL"); v != "" {
		cfg.LocalPublicURL = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.AccountServiceURL == "" {
		return errors.New("config: accountServiceURL is required (set in config.yaml)")
	}
	if cfg.InternalTokenSecret == "" {
		return errors.New("config: internalTokenSecret is required (set in config.yaml or BOOKBAZAAR_INTERNAL_TOKEN_SECRET)")
	}
	switch cfg.StorageDriver {
	case "", "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for the minio storage driver")
		}
	case "local":
		if cfg.LocalPath == "" || cfg.LocalPublicURL == "" {
			return errors.New("config: localPath and localPublicURL are required for the local storage driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", cfg.StorageDriver)
	}
	return nil
}
