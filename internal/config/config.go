// Package config loads mailcmd settings from a YAML file, MAILCMD_* env vars
// and defaults. String settings may be age-encrypted as ENC[...].
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sekia-ai/mailcmd/internal/mailbox"
	"github.com/sekia-ai/mailcmd/internal/router"
	"github.com/sekia-ai/mailcmd/internal/secrets"
)

// Config is the top-level configuration.
type Config struct {
	IMAP          mailbox.Config        `mapstructure:"imap"`
	Authorization AuthorizationConfig   `mapstructure:"authorization"`
	Services      ServicesConfig        `mapstructure:"services"`
	HTTP          router.HTTPConfig     `mapstructure:"http"`
	Shell         router.ShellConfig    `mapstructure:"shell"`
	Database      router.DatabaseConfig `mapstructure:"database"`
	MQTT          router.MQTTConfig     `mapstructure:"mqtt"`
	NATS          NATSConfig            `mapstructure:"nats"`
	Kafka         router.KafkaConfig    `mapstructure:"kafka"`
	Security      SecurityConfig        `mapstructure:"security"`
	Poll          PollConfig            `mapstructure:"poll"`
	Log           LogConfig             `mapstructure:"log"`
	Secrets       SecretsConfig         `mapstructure:"secrets"`
}

// AuthorizationConfig lists the senders allowed to trigger actions.
type AuthorizationConfig struct {
	AllowedSenders []string `mapstructure:"allowed_senders"`
}

// ServicesConfig locates the service registry file.
type ServicesConfig struct {
	Path     string `mapstructure:"path"`
	Required bool   `mapstructure:"required"`
	Watch    bool   `mapstructure:"watch"`
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SecurityConfig holds application-level security settings.
type SecurityConfig struct {
	CommandSecret string `mapstructure:"command_secret"`
}

// PollConfig holds poll mode settings.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecretsConfig points at the age identity file.
type SecretsConfig struct {
	Identity string `mapstructure:"identity"`
}

// mailboxRules validates the IMAP section; only commands that read mail
// need it.
type mailboxRules struct {
	Server   string `validate:"required,hostname_port"`
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// LoadConfig reads configuration from cfgFile, or from mailcmd.yaml in the
// default search path when cfgFile is empty. A missing file in the search
// path is not an error.
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.timeout", mailbox.DefaultTimeout)
	v.SetDefault("services.path", "services.yaml")
	v.SetDefault("services.required", false)
	v.SetDefault("services.watch", false)
	v.SetDefault("http.timeout", router.DefaultHTTPTimeout)
	v.SetDefault("shell.allowed_commands", router.DefaultAllowedCommands)
	v.SetDefault("shell.timeout", router.DefaultShellTimeout)
	v.SetDefault("database.driver", router.DriverMySQL)
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.timeout", router.DefaultDatabaseTimeout)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.timeout", router.DefaultMQTTTimeout)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.timeout", router.DefaultNATSTimeout)
	v.SetDefault("kafka.timeout", router.DefaultKafkaTimeout)
	v.SetDefault("poll.interval", "60s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetConfigType("yaml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("mailcmd")
		v.AddConfigPath("/etc/mailcmd")
		v.AddConfigPath("$HOME/.config/mailcmd")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MAILCMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("imap.username", "MAILCMD_IMAP_USERNAME")
	v.BindEnv("imap.password", "MAILCMD_IMAP_PASSWORD")
	v.BindEnv("database.password", "MAILCMD_DATABASE_PASSWORD")
	v.BindEnv("mqtt.password", "MAILCMD_MQTT_PASSWORD")
	v.BindEnv("nats.token", "MAILCMD_NATS_TOKEN")
	v.BindEnv("security.command_secret", "MAILCMD_COMMAND_SECRET")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if secrets.HasEncrypted(v) {
		keyring, err := secrets.DefaultResolver(v.GetString("secrets.identity")).Resolve()
		if err != nil {
			return Config{}, fmt.Errorf("resolve age identity: %w", err)
		}
		if keyring == nil {
			return Config{}, fmt.Errorf("config has ENC[...] values: %w (set %s or %s)",
				secrets.ErrNoIdentity, secrets.EnvAgeKey, secrets.EnvAgeKeyFile)
		}
		if _, err := secrets.DecryptSettings(v, keyring); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ValidateMailbox checks the settings needed to read mail.
func (c Config) ValidateMailbox() error {
	rules := mailboxRules{
		Server:   c.IMAP.Server,
		Username: c.IMAP.Username,
		Password: c.IMAP.Password,
	}
	if err := validator.New().Struct(rules); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			var fields []string
			for _, fe := range verrs {
				fields = append(fields, "imap."+strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
			}
			return fmt.Errorf("invalid mailbox settings: %s", strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

// RouterConfig returns the handler settings.
func (c Config) RouterConfig() router.Config {
	return router.Config{
		HTTP:     c.HTTP,
		Shell:    c.Shell,
		Database: c.Database,
		MQTT:     c.MQTT,
		NATS: router.NATSConfig{
			URL:           c.NATS.URL,
			Token:         c.NATS.Token,
			CommandSecret: c.Security.CommandSecret,
			Timeout:       c.NATS.Timeout,
		},
		Kafka: c.Kafka,
	}
}
