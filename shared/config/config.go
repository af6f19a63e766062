package config

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// Mode is the build/runtime mode. Fixtures are only ever served in development.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
	ModeTest        Mode = "test"
)

type Config struct {
	Public  Public
	private Private
}

type Public struct {
	Env      Mode     `yaml:"env" validate:"required,oneof=development production test"`
	API      API      `yaml:"api"`
	Mock     Mock     `yaml:"mock"`
	Query    Query    `yaml:"query"`
	Frontend Frontend `yaml:"frontend"`
	Log      Log      `yaml:"log"`
	Errors   Errors   `yaml:"errors"`
}

type API struct {
	BaseURL     string        `yaml:"base_url" validate:"required,url"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"` // 0 means no client timeout
	TokenPolicy string        `yaml:"token_policy" validate:"omitempty,oneof=per_request fixed"`
	RateLimit   float64       `yaml:"rate_limit" validate:"gte=0"` // outbound requests per second, 0 disables
	Burst       int           `yaml:"burst" validate:"gte=0"`
}

type Mock struct {
	Root  string        `yaml:"root"`
	Watch bool          `yaml:"watch"`
	Delay time.Duration `yaml:"delay" validate:"gte=0"` // simulated latency for fixture calls
}

type Query struct {
	StaleTime time.Duration `yaml:"stale_time" validate:"gte=0"`
	Retry     int           `yaml:"retry" validate:"gte=0,lte=10"`
}

type Frontend struct {
	Port           string   `yaml:"port"`
	LoginPath      string   `yaml:"login_path" validate:"omitempty,startswith=/"`
	SecureCookies  bool     `yaml:"secure_cookies"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Log struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
}

type Errors struct {
	FallbackTitle   string `yaml:"fallback_title"`
	FallbackMessage string `yaml:"fallback_message"`
}

type Private struct {
	JwtKey string `yaml:"jwt_key"` // optional; when set the frontend verifies token signatures
}

func (s *Config) JwtKey() string {
	return s.private.JwtKey
}

// IsDevelopment reports whether fixtures may be served.
func (s *Config) IsDevelopment() bool {
	return s.Public.Env == ModeDevelopment
}

func (p *Public) setDefaults() {
	if p.API.TokenPolicy == "" {
		p.API.TokenPolicy = "per_request"
	}
	if p.Mock.Root == "" {
		p.Mock.Root = "frontend/mock"
	}
	if p.Query.StaleTime == 0 {
		p.Query.StaleTime = time.Minute
	}
	if p.Frontend.Port == "" {
		p.Frontend.Port = "8081"
	}
	if p.Frontend.LoginPath == "" {
		p.Frontend.LoginPath = "/login"
	}
	if p.Log.Level == "" {
		p.Log.Level = "info"
	}
	if p.Errors.FallbackTitle == "" {
		p.Errors.FallbackTitle = "Error"
	}
	if p.Errors.FallbackMessage == "" {
		p.Errors.FallbackMessage = "Something went wrong. Please try again later."
	}
}

// applyEnv lets deployments override the handful of values that differ per host.
func (p *Public) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		p.Env = Mode(v)
	}
	if v := strings.TrimSpace(os.Getenv("API_BASE_URL")); v != "" {
		p.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		p.Frontend.Port = v
	}
}

func (p *Public) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func loadPath(configPath string, output interface{}) error {
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("can't read config file %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(configFile, output); err != nil {
		return fmt.Errorf("can't unmarshal config file %s: %w", configPath, err)
	}
	return nil
}

// Load reads public.yaml (required) and private.yaml (optional) from configFolder.
func Load(configFolder string) (*Config, error) {
	var public Public
	if err := loadPath(path.Join(configFolder, "public.yaml"), &public); err != nil {
		return nil, err
	}

	var private Private
	privatePath := path.Join(configFolder, "private.yaml")
	if _, err := os.Stat(privatePath); err == nil {
		if err := loadPath(privatePath, &private); err != nil {
			return nil, err
		}
	}

	public.applyEnv()
	public.setDefaults()
	if err := public.Validate(); err != nil {
		return nil, err
	}
	return &Config{public, private}, nil
}

func MustLoad(configFolder string) *Config {
	cfg, err := Load(configFolder)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}
