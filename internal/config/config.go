package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // "mysql" or "postgres"
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Classifier struct {
		URL            string   `yaml:"url"`
		TimeoutSeconds int      `yaml:"timeoutSeconds"`
		ModelVersion   string   `yaml:"modelVersion"`
		Labels         []string `yaml:"labels"`
	} `yaml:"classifier"`

	OpenAI struct {
		APIKey       string `yaml:"apiKey"` // falls back to OPENAI_API_KEY
		WhisperModel string `yaml:"whisperModel"`
	} `yaml:"openai"`

	Client struct {
		Environment   string `yaml:"environment"` // emulator | device | production
		LoopbackURL   string `yaml:"loopbackUrl"`
		LANURL        string `yaml:"lanUrl"`
		ProductionURL string `yaml:"productionUrl"`
	} `yaml:"client"`

	Stream struct {
		SpoolPath          string `yaml:"spoolPath"`
		IdleTimeoutSeconds int    `yaml:"idleTimeoutSeconds"`
	} `yaml:"stream"`

	Auth struct {
		APIKeys map[string]string `yaml:"apiKeys"` // principal -> key
	} `yaml:"auth"`
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Stream.SpoolPath == "" {
		c.Stream.SpoolPath = "./data/stream"
	}
	if c.Stream.IdleTimeoutSeconds == 0 {
		c.Stream.IdleTimeoutSeconds = 120
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
