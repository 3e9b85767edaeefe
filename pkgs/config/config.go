package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/emx-mail/mcp/pkgs/email"
)

const (
	// EnvConfigPath points to the config file when --config is not given.
	EnvConfigPath = "EMX_MAIL_CONFIG"

	// DefaultEnvFile is read from the working directory when present.
	DefaultEnvFile = ".env"

	EnvProduction = "production"
)

// ProtocolSettings holds connection settings common to IMAP and SMTP.
type ProtocolSettings struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// SSL enables implicit TLS (connect directly over TLS).
	SSL bool `mapstructure:"ssl" yaml:"ssl"`
	// StartTLS enables opportunistic TLS upgrade after connecting in plaintext.
	StartTLS bool `mapstructure:"starttls" yaml:"starttls"`

	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify,omitempty"`
}

// FetchSettings tunes the fetch pipeline.
type FetchSettings struct {
	Limit   int `mapstructure:"limit" yaml:"limit"`
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// Config holds the account and server configuration.
type Config struct {
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	FromName string `mapstructure:"from_name" yaml:"from_name,omitempty"`

	IMAP  ProtocolSettings `mapstructure:"imap" yaml:"imap"`
	SMTP  ProtocolSettings `mapstructure:"smtp" yaml:"smtp"`
	Fetch FetchSettings    `mapstructure:"fetch" yaml:"fetch"`

	// Timeout bounds a single tool call.
	Timeout time.Duration `mapstructure:"timeout" yaml:"-"`
	// Port is the listen port of the HTTP transport.
	Port int    `mapstructure:"port" yaml:"port"`
	Env  string `mapstructure:"env" yaml:"env"`

	// Keyring enables the OS keyring lookup when no password is configured.
	Keyring bool `mapstructure:"keyring" yaml:"keyring"`
}

// MarshalYAML writes Timeout as a duration string.
func (c Config) MarshalYAML() (any, error) {
	type plain Config
	return struct {
		plain   `yaml:",inline"`
		Timeout string `yaml:"timeout"`
	}{plain(c), c.Timeout.String()}, nil
}

// envBindings maps config keys to environment variables, first match wins.
var envBindings = map[string][]string{
	"user":      {"EMX_MAIL_USER", "GMAIL_USER"},
	"password":  {"EMX_MAIL_PASSWORD", "GMAIL_APP_PASSWORD"},
	"imap.host": {"EMX_MAIL_IMAP_HOST"},
	"imap.port": {"EMX_MAIL_IMAP_PORT"},
	"smtp.host": {"EMX_MAIL_SMTP_HOST"},
	"smtp.port": {"EMX_MAIL_SMTP_PORT"},
	"timeout":   {"EMX_MAIL_TIMEOUT"},
	"port":      {"PORT"},
	"env":       {"EMX_MAIL_ENV", "NODE_ENV"},
	"keyring":   {"EMX_MAIL_KEYRING"},
}

// flagBindings maps config keys to the flags registered by BindFlags.
var flagBindings = map[string]string{
	"user":                      "user",
	"imap.host":                 "imap-host",
	"imap.port":                 "imap-port",
	"imap.insecure_skip_verify": "insecure-skip-verify",
	"smtp.host":                 "smtp-host",
	"smtp.port":                 "smtp-port",
	"timeout":                   "timeout",
	"keyring":                   "keyring",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("imap.host", "imap.gmail.com")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.ssl", true)
	v.SetDefault("imap.starttls", false)
	v.SetDefault("imap.insecure_skip_verify", false)
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.ssl", true)
	v.SetDefault("smtp.starttls", false)
	v.SetDefault("smtp.insecure_skip_verify", false)
	v.SetDefault("fetch.limit", email.DefaultLimit)
	v.SetDefault("fetch.workers", email.DefaultDecodeWorkers)
	v.SetDefault("timeout", "60s")
	v.SetDefault("port", 3000)
	v.SetDefault("env", "development")
	v.SetDefault("keyring", false)
}

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigFile is an explicit config path. Empty means EnvConfigPath, then
	// DefaultConfigPath; only an explicit path must exist.
	ConfigFile string
	// EnvFile defaults to DefaultEnvFile. It never has to exist.
	EnvFile string
	// Flags, when set, override every other source.
	Flags *pflag.FlagSet
	// Keyring opens the credential store. Nil means OpenKeyring.
	Keyring KeyringOpener
}

// DefaultConfigPath returns ~/.config/emx-mail/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "emx-mail", "config.yaml")
}

// Load resolves the configuration. Precedence, highest first: flags,
// environment, .env file, config file, defaults. Load does not validate.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := mergeEnvFile(v, envFile); err != nil {
		return nil, err
	}

	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, err
		}
	}

	if opts.Flags != nil {
		for key, name := range flagBindings {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.User = strings.TrimSpace(cfg.User)

	if cfg.Password == "" && cfg.Keyring && cfg.User != "" {
		open := opts.Keyring
		if open == nil {
			open = OpenKeyring
		}
		password, err := LookupPassword(open, cfg.User)
		if err != nil {
			return nil, err
		}
		cfg.Password = password
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper, explicit string) error {
	path, required := explicit, explicit != ""
	if path == "" {
		if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
			path, required = env, true
		} else {
			path = DefaultConfigPath()
		}
	}

	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// mergeEnvFile layers a dotenv file above the config file. Only variables
// listed in envBindings are taken.
func mergeEnvFile(v *viper.Viper, path string) error {
	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	values := dotenv.AllSettings()
	layer := map[string]any{}
	for key, names := range envBindings {
		// Earlier names win, as with BindEnv.
		for i := len(names) - 1; i >= 0; i-- {
			if val, ok := values[strings.ToLower(names[i])]; ok {
				setNested(layer, key, val)
			}
		}
	}
	if len(layer) == 0 {
		return nil
	}
	return v.MergeConfigMap(layer)
}

func setNested(m map[string]any, key string, val any) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = val
}

// BindFlags registers the command-line overrides understood by Load.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("user", "", "account user name / address")
	fs.String("imap-host", "", "IMAP server host")
	fs.Int("imap-port", 0, "IMAP server port")
	fs.String("smtp-host", "", "SMTP server host")
	fs.Int("smtp-port", 0, "SMTP server port")
	fs.Bool("insecure-skip-verify", false, "skip IMAP TLS certificate verification")
	fs.Duration("timeout", 0, "per-call timeout")
	fs.Bool("keyring", false, "read the password from the OS keyring")
}

// Validate reports the first missing or invalid setting.
func (c *Config) Validate() error {
	if c.User == "" {
		return errors.New("user is required (set EMX_MAIL_USER or GMAIL_USER)")
	}
	if c.Password == "" {
		return errors.New("password is required (set EMX_MAIL_PASSWORD, GMAIL_APP_PASSWORD or enable keyring)")
	}
	for name, p := range map[string]ProtocolSettings{"imap": c.IMAP, "smtp": c.SMTP} {
		if p.Host == "" {
			return fmt.Errorf("%s.host is required", name)
		}
		if p.Port <= 0 || p.Port > 65535 {
			return fmt.Errorf("%s.port %d out of range", name, p.Port)
		}
		if p.SSL && p.StartTLS {
			return fmt.Errorf("%s: ssl and starttls are mutually exclusive", name)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// IsProduction reports whether env is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// Domain returns the domain part of the account address.
// Returns "localhost" if no domain can be extracted.
func (c *Config) Domain() string {
	if idx := strings.LastIndex(c.User, "@"); idx >= 0 && idx < len(c.User)-1 {
		return c.User[idx+1:]
	}
	return "localhost"
}

// From returns the sender address of the account.
func (c *Config) From() email.Address {
	return email.Address{Name: c.FromName, Email: c.User}
}

// IMAPConfig converts the IMAP settings for the email package.
func (c *Config) IMAPConfig() email.IMAPConfig {
	return email.IMAPConfig{
		Host:               c.IMAP.Host,
		Port:               c.IMAP.Port,
		Username:           c.User,
		Password:           c.Password,
		SSL:                c.IMAP.SSL,
		StartTLS:           c.IMAP.StartTLS,
		InsecureSkipVerify: c.IMAP.InsecureSkipVerify,
	}
}

// SMTPConfig converts the SMTP settings for the email package.
func (c *Config) SMTPConfig() email.SMTPConfig {
	return email.SMTPConfig{
		Host:               c.SMTP.Host,
		Port:               c.SMTP.Port,
		Username:           c.User,
		Password:           c.Password,
		SSL:                c.SMTP.SSL,
		StartTLS:           c.SMTP.StartTLS,
		InsecureSkipVerify: c.SMTP.InsecureSkipVerify,
	}
}

// Example returns the configuration written by "init".
func Example() *Config {
	return &Config{
		User:     "user@gmail.com",
		FromName: "Your Name",
		IMAP:     ProtocolSettings{Host: "imap.gmail.com", Port: 993, SSL: true},
		SMTP:     ProtocolSettings{Host: "smtp.gmail.com", Port: 465, SSL: true},
		Fetch:    FetchSettings{Limit: email.DefaultLimit, Workers: email.DefaultDecodeWorkers},
		Timeout:  60 * time.Second,
		Port:     3000,
		Env:      "development",
	}
}

// Save writes cfg as YAML, creating parent directories. An existing file
// is only replaced when overwrite is set.
func Save(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
