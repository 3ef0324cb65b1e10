package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/sbginvoice/internal/logging"
)

var requiredEnv = map[string]string{
	"CALENDAR_ID":          "sessions@group.calendar.google.com",
	"FROM_EMAIL":           "me@example.com",
	"TO_EMAIL":             "billing@sbg.example",
	"GMAIL_APP_PASSWORD":   "abcd efgh ijkl mnop",
	"GOOGLE_CLIENT_ID":     "client.apps.googleusercontent.com",
	"GOOGLE_PROJECT_ID":    "invoice-project",
	"GOOGLE_CLIENT_SECRET": "secret",
}

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for name := range envKeys {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	setEnv(t, requiredEnv)
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("INVOICE_WORK_DIR", "/srv/invoices")

	cfg, err := Load(LoadOptions{}, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sessions@group.calendar.google.com", cfg.Calendar.ID)
	assert.Equal(t, "me@example.com", cfg.Mail.From)
	assert.Equal(t, "billing@sbg.example", cfg.Mail.To)
	assert.Equal(t, 2525, cfg.Mail.Port)
	assert.Equal(t, "smtp.gmail.com", cfg.Mail.Host)
	assert.Equal(t, "invoice-project", cfg.Google.ProjectID)
	assert.Equal(t, "/srv/invoices", cfg.Renderer.WorkDir)
	assert.Equal(t, "/srv/invoices/wrapper_for_knit.R", cfg.ScriptPath())
	assert.Equal(t, "/srv/invoices", cfg.OutputPath())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(LoadOptions{}, nil)
	require.NoError(t, err)

	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "CALENDAR_ID=file-calendar\nTO_EMAIL=file@sbg.example\nSMTP_PORT=465\nUNRELATED=ignored\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0600))

	// The environment wins over the dotenv file.
	t.Setenv("TO_EMAIL", "env@sbg.example")

	cfg, err := Load(LoadOptions{EnvFile: envFile}, logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, "file-calendar", cfg.Calendar.ID)
	assert.Equal(t, "env@sbg.example", cfg.Mail.To)
	assert.Equal(t, 465, cfg.Mail.Port)
}

func TestLoad_MissingEnvFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	_, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "absent.env")}, logging.Discard())
	assert.NoError(t, err)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "sbginvoice.yaml")
	content := `
calendar:
  id: yaml-calendar
renderer:
  command: /opt/R/bin/Rscript
  work_dir: /srv/knitr
  script: /srv/knitr/custom.R
output_dir: /srv/out
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(LoadOptions{ConfigFile: path}, logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, "yaml-calendar", cfg.Calendar.ID)
	assert.Equal(t, "/opt/R/bin/Rscript", cfg.Renderer.Command)
	assert.Equal(t, "/srv/knitr/custom.R", cfg.ScriptPath())
	assert.Equal(t, "/srv/out", cfg.OutputPath())
	// Untouched defaults survive.
	assert.Equal(t, 587, cfg.Mail.Port)
}

func TestLoad_MissingConfigFileIsAnError(t *testing.T) {
	clearEnv(t)
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")}, logging.Discard())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		wantMissing []string
		wantInvalid int
	}{
		{
			name:   "complete",
			mutate: func(c *Config) {},
		},
		{
			name:        "missing calendar",
			mutate:      func(c *Config) { c.Calendar.ID = "" },
			wantMissing: []string{"CALENDAR_ID"},
		},
		{
			name: "missing mail credentials",
			mutate: func(c *Config) {
				c.Mail.From = "  "
				c.Mail.Password = ""
			},
			wantMissing: []string{"FROM_EMAIL", "GMAIL_APP_PASSWORD"},
		},
		{
			name: "missing oauth client",
			mutate: func(c *Config) {
				c.Google.ClientID = ""
				c.Google.ProjectID = ""
				c.Google.ClientSecret = ""
			},
			wantMissing: []string{"GOOGLE_CLIENT_ID", "GOOGLE_PROJECT_ID", "GOOGLE_CLIENT_SECRET"},
		},
		{
			name:        "bad port",
			mutate:      func(c *Config) { c.Mail.Port = 0 },
			wantInvalid: 1,
		},
		{
			name: "no renderer",
			mutate: func(c *Config) {
				c.Renderer.Command = ""
				c.Google.OAuthPort = 70000
			},
			wantInvalid: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantMissing == nil && tt.wantInvalid == 0 {
				assert.NoError(t, err)
				return
			}

			var cerr *ConfigurationError
			require.True(t, errors.As(err, &cerr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.wantMissing, cerr.Missing)
			assert.Len(t, cerr.Invalid, tt.wantInvalid)
		})
	}
}

func TestConfigurationError_Message(t *testing.T) {
	err := &ConfigurationError{
		Missing: []string{"CALENDAR_ID", "TO_EMAIL"},
		Invalid: []string{"SMTP_PORT 0 is out of range"},
	}
	assert.Equal(t,
		"configuration error: missing required environment variables: CALENDAR_ID, TO_EMAIL; SMTP_PORT 0 is out of range",
		err.Error())
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Calendar.ID = "primary"
	cfg.Mail.From = "me@example.com"
	cfg.Mail.To = "billing@sbg.example"
	cfg.Mail.Password = "app-password"
	cfg.Google.ClientID = "id"
	cfg.Google.ProjectID = "project"
	cfg.Google.ClientSecret = "secret"
	return cfg
}

func TestValidateGoogle(t *testing.T) {
	cfg := Defaults()
	cfg.Google.ClientID = "id"
	cfg.Google.ProjectID = "project"
	cfg.Google.ClientSecret = "secret"
	// Mail and calendar settings are not needed to authorize.
	assert.NoError(t, cfg.ValidateGoogle())

	cfg.Google.ClientSecret = ""
	var cerr *ConfigurationError
	require.ErrorAs(t, cfg.ValidateGoogle(), &cerr)
	assert.Equal(t, []string{"GOOGLE_CLIENT_SECRET"}, cerr.Missing)
}

func TestScriptPath_RelativeWorkDir(t *testing.T) {
	cfg := Defaults()
	cfg.Renderer.WorkDir = "project"
	cfg.Renderer.Script = "wrapper_for_knit.R"

	got := cfg.ScriptPath()
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, filepath.Join("project", "wrapper_for_knit.R"), filepath.Join(filepath.Base(filepath.Dir(got)), filepath.Base(got)))
}
