package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Signal struct {
		Port         string  `yaml:"port"`
		URL          string  `yaml:"url"`
		Backend      string  `yaml:"backend"` // memory | redis
		RoomTTL      string  `yaml:"room_ttl"`
		RateLimitRPS int     `yaml:"rate_limit_rps"`
		RateBurst    int     `yaml:"rate_burst"`
	} `yaml:"signal"`
	Peer struct {
		ListenAddr    string `yaml:"listen_addr"`
		AdvertiseHost string `yaml:"advertise_host"`
	} `yaml:"peer"`
	Match struct {
		SettleDelay string `yaml:"settle_delay"`
	} `yaml:"match"`
	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
	History struct {
		Backend    string `yaml:"backend"` // sqlite | memory | redis | postgres
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"history"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
}

// Load reads YAML config from path, then applies .env and environment
// overrides. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	_ = godotenv.Load() // .env is optional
	applyEnv(&cfg)
	return cfg, nil
}

// Defaults returns a config usable on a single machine without Redis or Postgres.
func Defaults() Config {
	cfg := Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "pretty"
	cfg.Signal.Port = "8080"
	cfg.Signal.URL = "http://localhost:8080"
	cfg.Signal.Backend = "memory"
	cfg.Signal.RoomTTL = "2h"
	cfg.Signal.RateLimitRPS = 5
	cfg.Signal.RateBurst = 10
	cfg.Peer.ListenAddr = ":0"
	cfg.Peer.AdvertiseHost = "localhost"
	cfg.Match.SettleDelay = "800ms"
	cfg.Gemini.Model = "gemini-3-flash-preview"
	cfg.History.Backend = "sqlite"
	cfg.History.SQLitePath = "quizsnap.db"
	cfg.Cache.TTL = "30m"
	return cfg
}

func applyEnv(cfg *Config) {
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Signal.URL, "SIGNAL_URL")
	setString(&cfg.Signal.Port, "PORT")
	setString(&cfg.Peer.AdvertiseHost, "PEER_ADVERTISE_HOST")
	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Gemini.Model, "GEMINI_MODEL")
	setString(&cfg.History.Backend, "HISTORY_BACKEND")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Postgres.URL, "POSTGRES_URL")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
