// Package config loads the invoice run configuration.
//
// Values are layered with koanf: built-in defaults, an optional YAML file,
// an optional dotenv file, and finally the process environment. The result
// is an explicit Config value that the command layer hands to each pipeline
// component.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Calendar  Calendar `koanf:"calendar"`
	Google    Google   `koanf:"google"`
	Mail      Mail     `koanf:"mail"`
	Renderer  Renderer `koanf:"renderer"`
	OutputDir string   `koanf:"output_dir"`
}

type Calendar struct {
	ID string `koanf:"id"`
}

// Google holds the installed-app OAuth client and the token cache location.
type Google struct {
	ClientID     string `koanf:"client_id"`
	ProjectID    string `koanf:"project_id"`
	ClientSecret string `koanf:"client_secret"`
	TokenPath    string `koanf:"token_path"`
	// OAuthPort is the loopback port for the interactive consent redirect.
	// Zero picks a free port.
	OAuthPort int `koanf:"oauth_port"`
}

type Mail struct {
	From     string `koanf:"from"`
	To       string `koanf:"to"`
	Password string `koanf:"password"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
}

// Renderer describes the external invoice generator invocation:
// <Command> <Script> <csv> <date> <pdf>, run inside WorkDir.
type Renderer struct {
	Command string `koanf:"command"`
	Script  string `koanf:"script"`
	WorkDir string `koanf:"work_dir"`
}

// LoadOptions names the optional files consulted before the environment.
type LoadOptions struct {
	ConfigFile string
	EnvFile    string
}

// envKeys maps environment variable names to koanf keys.
var envKeys = map[string]string{
	"CALENDAR_ID":            "calendar.id",
	"FROM_EMAIL":             "mail.from",
	"TO_EMAIL":               "mail.to",
	"GMAIL_APP_PASSWORD":     "mail.password",
	"SMTP_SERVER":            "mail.host",
	"SMTP_PORT":              "mail.port",
	"GOOGLE_CLIENT_ID":       "google.client_id",
	"GOOGLE_PROJECT_ID":      "google.project_id",
	"GOOGLE_CLIENT_SECRET":   "google.client_secret",
	"GOOGLE_TOKEN_PATH":      "google.token_path",
	"GOOGLE_OAUTH_PORT":      "google.oauth_port",
	"RSCRIPT_PATH":           "renderer.command",
	"INVOICE_WRAPPER_SCRIPT": "renderer.script",
	"INVOICE_WORK_DIR":       "renderer.work_dir",
	"INVOICE_OUTPUT_DIR":     "output_dir",
}

func envKey(name string) string {
	return envKeys[strings.TrimSpace(name)]
}

// Defaults returns the configuration used when nothing overrides a value.
func Defaults() Config {
	return Config{
		Google: Google{
			TokenPath: "token.json",
		},
		Mail: Mail{
			Host: "smtp.gmail.com",
			Port: 587,
		},
		Renderer: Renderer{
			Command: "/usr/local/bin/Rscript",
			Script:  "wrapper_for_knit.R",
			WorkDir: ".",
		},
	}
}

// Load builds a Config from defaults, the optional files in opts and the
// environment. It does not validate; call Validate before using the result.
func Load(opts LoadOptions, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if opts.ConfigFile != "" {
		// An explicitly named config file must exist.
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", opts.ConfigFile, err)
		}
		logger.Debug("loaded configuration file", "path", opts.ConfigFile)
	}

	if opts.EnvFile != "" {
		err := k.Load(file.Provider(opts.EnvFile), dotenv.ParserEnv("", ".", envKey))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Debug("env file not found, using environment only", "path", opts.EnvFile)
		case err != nil:
			return Config{}, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		default:
			logger.Debug("loaded env file", "path", opts.EnvFile)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			return envKey(k), v
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load config from environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every required setting is present. All problems are
// reported together in a single *ConfigurationError.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"CALENDAR_ID", c.Calendar.ID},
		{"FROM_EMAIL", c.Mail.From},
		{"TO_EMAIL", c.Mail.To},
		{"GMAIL_APP_PASSWORD", c.Mail.Password},
		{"GOOGLE_CLIENT_ID", c.Google.ClientID},
		{"GOOGLE_PROJECT_ID", c.Google.ProjectID},
		{"GOOGLE_CLIENT_SECRET", c.Google.ClientSecret},
	}

	cerr := &ConfigurationError{}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			cerr.Missing = append(cerr.Missing, r.name)
		}
	}

	if c.Mail.Host == "" {
		cerr.Invalid = append(cerr.Invalid, "SMTP_SERVER must not be empty")
	}
	if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("SMTP_PORT %d is out of range", c.Mail.Port))
	}
	if c.Google.OAuthPort < 0 || c.Google.OAuthPort > 65535 {
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("GOOGLE_OAUTH_PORT %d is out of range", c.Google.OAuthPort))
	}
	if c.Renderer.Command == "" {
		cerr.Invalid = append(cerr.Invalid, "RSCRIPT_PATH must not be empty")
	}

	if len(cerr.Missing) > 0 || len(cerr.Invalid) > 0 {
		return cerr
	}
	return nil
}

// ValidateGoogle checks only the OAuth client settings, which is all the
// auth command needs.
func (c *Config) ValidateGoogle() error {
	cerr := &ConfigurationError{}
	for _, r := range []struct {
		name  string
		value string
	}{
		{"GOOGLE_CLIENT_ID", c.Google.ClientID},
		{"GOOGLE_PROJECT_ID", c.Google.ProjectID},
		{"GOOGLE_CLIENT_SECRET", c.Google.ClientSecret},
	} {
		if strings.TrimSpace(r.value) == "" {
			cerr.Missing = append(cerr.Missing, r.name)
		}
	}
	if c.Google.OAuthPort < 0 || c.Google.OAuthPort > 65535 {
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("GOOGLE_OAUTH_PORT %d is out of range", c.Google.OAuthPort))
	}

	if len(cerr.Missing) > 0 || len(cerr.Invalid) > 0 {
		return cerr
	}
	return nil
}

// ScriptPath resolves the renderer script against the renderer working
// directory and returns it as an absolute path.
func (c *Config) ScriptPath() string {
	if c.Renderer.Script == "" || filepath.IsAbs(c.Renderer.Script) {
		return c.Renderer.Script
	}
	p := filepath.Join(c.Renderer.WorkDir, c.Renderer.Script)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// OutputPath returns the directory that receives the CSV and PDF.
// It defaults to the renderer working directory.
func (c *Config) OutputPath() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return c.Renderer.WorkDir
}
