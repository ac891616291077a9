package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects how the service is hosted.
type Mode string

const (
	ModeAuto       Mode = ""
	ModeStandalone Mode = "standalone"
	ModeLambda     Mode = "lambda"
	ModeVercel     Mode = "vercel"
)

const (
	DefaultFrontendURL    = "https://devkron-frontend.vercel.app"
	DefaultPort           = "5000"
	DefaultServiceName    = "contactd"
	DefaultConnectTimeout = 10 * time.Second
	DefaultMaxBodyBytes   = 100 << 10
)

// Config holds runtime configuration resolved from environment variables.
type Config struct {
	DatabaseURI    string
	AllowedOrigins []string
	AllowedSuffix  string

	Port        string
	Mode        Mode
	ServiceName string

	ConnectTimeout     time.Duration
	MaxBodyBytes       int64
	ExposeErrorDetails bool
	TrustProxyHeaders  bool

	LogLevel  string
	LogFormat string

	// Platform markers, only used to resolve ModeAuto.
	Vercel       bool
	FunctionName string
}

// FieldError describes one invalid setting.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every problem found while loading the environment.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid configuration (%d error(s))", len(e.Fields))
	for _, f := range e.Fields {
		sb.WriteString("; ")
		sb.WriteString(f.Error())
	}
	return sb.String()
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv reads the process environment.
func FromEnv() (*Config, error) {
	return Load(os.LookupEnv)
}

// LoadDotEnv loads variables from the given files (".env" when none given)
// without overriding what is already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds a Config from lookup. A missing database URI is not an error
// here; the connection cache reports it on first use.
func Load(lookup LookupFunc) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	verr := &ValidationError{}

	cfg := &Config{
		DatabaseURI:   get("DATABASE_URI"),
		AllowedSuffix: get("CORS_ALLOWED_SUFFIX"),
		Port:          get("PORT"),
		Mode:          Mode(strings.ToLower(get("CONTACTD_MODE"))),
		ServiceName:   get("SERVICE_NAME"),
		LogLevel:      strings.ToLower(get("LOG_LEVEL")),
		LogFormat:     strings.ToLower(get("LOG_FORMAT")),
		Vercel:        get("VERCEL") != "",
		FunctionName:  get("AWS_LAMBDA_FUNCTION_NAME"),
	}
	if cfg.DatabaseURI == "" {
		cfg.DatabaseURI = get("MONGO_URI")
	}

	frontend, ok := lookup("FRONTEND_URL")
	if !ok {
		frontend = DefaultFrontendURL
	}
	cfg.AllowedOrigins = SplitList(frontend)

	if cfg.Port == "" {
		cfg.Port = DefaultPort
	} else if n, err := strconv.Atoi(cfg.Port); err != nil || n <= 0 || n > 65535 {
		verr.add("PORT", "must be a port number, got %q", cfg.Port)
	}

	switch cfg.Mode {
	case ModeAuto, ModeStandalone, ModeLambda, ModeVercel:
	default:
		verr.add("CONTACTD_MODE", "must be one of standalone, lambda, vercel, got %q", cfg.Mode)
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	cfg.ConnectTimeout = DefaultConnectTimeout
	if raw := get("CONNECT_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			verr.add("CONNECT_TIMEOUT", "must be a positive duration, got %q", raw)
		} else {
			cfg.ConnectTimeout = d
		}
	}

	cfg.MaxBodyBytes = DefaultMaxBodyBytes
	if raw := get("MAX_BODY_BYTES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			verr.add("MAX_BODY_BYTES", "must be a positive integer, got %q", raw)
		} else {
			cfg.MaxBodyBytes = n
		}
	}

	if raw := get("EXPOSE_ERROR_DETAILS"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			verr.add("EXPOSE_ERROR_DETAILS", "must be a boolean, got %q", raw)
		}
		cfg.ExposeErrorDetails = b
	}

	// Vercel overwrites the forwarding headers at its edge.
	cfg.TrustProxyHeaders = cfg.ResolveMode() == ModeVercel
	if raw := get("TRUST_PROXY_HEADERS"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			verr.add("TRUST_PROXY_HEADERS", "must be a boolean, got %q", raw)
		}
		cfg.TrustProxyHeaders = b
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		verr.add("LOG_LEVEL", "must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		verr.add("LOG_FORMAT", "must be json or console, got %q", cfg.LogFormat)
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return cfg, nil
}

// ResolveMode returns the configured mode, or infers it from platform
// markers when none was set.
func (c *Config) ResolveMode() Mode {
	switch {
	case c.Mode != ModeAuto:
		return c.Mode
	case c.Vercel:
		return ModeVercel
	case c.FunctionName != "":
		return ModeLambda
	default:
		return ModeStandalone
	}
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
