package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr               string `yaml:"addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
}

type Mongo struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type Redis struct {
	Addr string `yaml:"addr"`
}

type Auth struct {
	JWTSecret          string `yaml:"jwt_secret"`
	InstructorUsername string `yaml:"instructor_username"`
	InstructorPassword string `yaml:"instructor_password"`
}

type Attendance struct {
	// TokenSecret keys the fallback-code derivation.
	TokenSecret string `yaml:"token_secret"`
	// SweepOnClose makes closing a session insert absent marks for every
	// enrolled subject without one.
	SweepOnClose bool `yaml:"sweep_on_close"`
}

type Config struct {
	Server     Server     `yaml:"server"`
	Mongo      Mongo      `yaml:"mongo"`
	Redis      Redis      `yaml:"redis"`
	Auth       Auth       `yaml:"auth"`
	Attendance Attendance `yaml:"attendance"`
}

// Load reads the optional YAML config file at path, expands ${ENV} references
// in it, then fills every remaining empty field from environment variables
// with sensible defaults. A missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Addr, "ADDR", ":8080")
	setDefault(&c.Server.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS", "*")
	setDefault(&c.Mongo.URI, "MONGO_URI", "mongodb://localhost:27017")
	setDefault(&c.Mongo.Database, "MONGO_DATABASE", "rollcall")
	setDefault(&c.Redis.Addr, "REDIS_ADDR", "localhost:6379")
	setDefault(&c.Auth.JWTSecret, "JWT_SECRET", "super-secret-key-change-in-production")
	setDefault(&c.Auth.InstructorUsername, "INSTRUCTOR_USERNAME", "admin")
	setDefault(&c.Auth.InstructorPassword, "INSTRUCTOR_PASSWORD", "password123")
	setDefault(&c.Attendance.TokenSecret, "TOKEN_SECRET", c.Auth.JWTSecret)
	if !c.Attendance.SweepOnClose {
		c.Attendance.SweepOnClose = getEnvBool("SWEEP_ON_CLOSE", false)
	}
}

func setDefault(field *string, envKey, fallback string) {
	if *field != "" {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		*field = v
		return
	}
	*field = fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
