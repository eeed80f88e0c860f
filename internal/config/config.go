package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port      int    `yaml:"port"`
		DataPath  string `yaml:"data_path"`
		StaticDir string `yaml:"static_dir"`
		Debug     bool   `yaml:"debug"`
	} `yaml:"app"`

	Downloads struct {
		Path               string  `yaml:"path"`
		PollInterval       string  `yaml:"poll_interval"`
		FetchTimeout       string  `yaml:"fetch_timeout"`
		SeedRatioCutoff    float64 `yaml:"seed_ratio_cutoff"`
		RemoveDataOnCutoff bool    `yaml:"remove_data_on_cutoff"`
	} `yaml:"downloads"`

	Engine struct {
		Type     string `yaml:"type"` // 'native', 'qbittorrent' or 'mock'
		Host     string `yaml:"host"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"engine"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	History struct {
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"history"`

	Notifications struct {
		PushbulletAPIKey string `yaml:"pushbullet_api_key"`
	} `yaml:"notifications"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.App.Port = 8000
	cfg.App.DataPath = "./data"
	cfg.App.Debug = false

	cfg.Downloads.Path = "./downloads"
	cfg.Downloads.PollInterval = "1s"
	cfg.Downloads.FetchTimeout = "10s"
	cfg.Downloads.SeedRatioCutoff = 2.0
	cfg.Downloads.RemoveDataOnCutoff = false

	cfg.Engine.Type = "native"
	cfg.Engine.Host = "http://localhost:8080"

	cfg.Database.Path = "./data/magnetd.db"

	cfg.History.RetentionDays = 90
}

// PollIntervalDuration parses the configured poll interval, falling back to one second.
func (c *Config) PollIntervalDuration() time.Duration {
	if d, err := time.ParseDuration(c.Downloads.PollInterval); err == nil && d > 0 {
		return d
	}
	return time.Second
}

// FetchTimeoutDuration parses the per-entry status fetch timeout, falling back to ten seconds.
func (c *Config) FetchTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.Downloads.FetchTimeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}
