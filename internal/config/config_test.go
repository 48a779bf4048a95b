package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/google/go-cmp/cmp"

	"github.com/sekia-ai/mailcmd/internal/mailbox"
	"github.com/sekia-ai/mailcmd/internal/router"
	"github.com/sekia-ai/mailcmd/internal/secrets"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailcmd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "imap:\n  server: imap.example.com:993\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.IMAP.Mailbox != "INBOX" || !cfg.IMAP.TLS {
		t.Errorf("imap = %+v, want INBOX over TLS", cfg.IMAP)
	}
	if cfg.IMAP.Timeout != mailbox.DefaultTimeout {
		t.Errorf("imap.timeout = %v, want %v", cfg.IMAP.Timeout, mailbox.DefaultTimeout)
	}
	if cfg.Services.Path != "services.yaml" || cfg.Services.Required || cfg.Services.Watch {
		t.Errorf("services = %+v", cfg.Services)
	}
	if cfg.Poll.Interval != 60*time.Second {
		t.Errorf("poll.interval = %v, want 60s", cfg.Poll.Interval)
	}
	if cfg.HTTP.Timeout != router.DefaultHTTPTimeout {
		t.Errorf("http.timeout = %v, want %v", cfg.HTTP.Timeout, router.DefaultHTTPTimeout)
	}
	if diff := cmp.Diff(router.DefaultAllowedCommands, cfg.Shell.AllowedCommands); diff != "" {
		t.Errorf("shell.allowed_commands mismatch (-want +got):\n%s", diff)
	}
	if cfg.MQTT.Host != "localhost" || cfg.MQTT.Port != 1883 {
		t.Errorf("mqtt = %s:%d, want localhost:1883", cfg.MQTT.Host, cfg.MQTT.Port)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
imap:
  server: imap.example.com:993
  username: home@example.com
  tls: false
authorization:
  allowed_senders:
    - alice@example.com
    - Bob <bob@example.com>
services:
  path: /etc/mailcmd/services.yaml
  watch: true
shell:
  allowed_commands: [reboot]
  timeout: 5s
database:
  driver: sqlite3
  path: /var/lib/mailcmd/home.db
kafka:
  brokers: [k1:9092, k2:9092]
security:
  command_secret: from-file
poll:
  interval: 15s
`)
	t.Setenv("MAILCMD_IMAP_PASSWORD", "app-password")
	t.Setenv("MAILCMD_COMMAND_SECRET", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.IMAP.Password != "app-password" {
		t.Errorf("imap.password = %q, want env value", cfg.IMAP.Password)
	}
	if cfg.IMAP.TLS {
		t.Error("imap.tls = true, want false")
	}
	wantSenders := []string{"alice@example.com", "Bob <bob@example.com>"}
	if diff := cmp.Diff(wantSenders, cfg.Authorization.AllowedSenders); diff != "" {
		t.Errorf("allowed_senders mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Services.Watch || cfg.Services.Path != "/etc/mailcmd/services.yaml" {
		t.Errorf("services = %+v", cfg.Services)
	}
	if cfg.Shell.Timeout != 5*time.Second || len(cfg.Shell.AllowedCommands) != 1 {
		t.Errorf("shell = %+v", cfg.Shell)
	}
	if cfg.Poll.Interval != 15*time.Second {
		t.Errorf("poll.interval = %v, want 15s", cfg.Poll.Interval)
	}

	rc := cfg.RouterConfig()
	if rc.NATS.CommandSecret != "from-env" {
		t.Errorf("nats command secret = %q, want from-env", rc.NATS.CommandSecret)
	}
	if rc.Database.Driver != router.DriverSQLite || rc.Database.Path != "/var/lib/mailcmd/home.db" {
		t.Errorf("database = %+v", rc.Database)
	}
	if diff := cmp.Diff([]string{"k1:9092", "k2:9092"}, rc.Kafka.Brokers); diff != "" {
		t.Errorf("kafka brokers mismatch (-want +got):\n%s", diff)
	}

	if err := cfg.ValidateMailbox(); err != nil {
		t.Errorf("ValidateMailbox: %v", err)
	}
}

func TestLoadConfig_EncryptedValues(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	enc, err := secrets.Encrypt("s3cret", id.Recipient())
	if err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, "imap:\n  password: "+enc+"\n")

	t.Setenv(secrets.EnvAgeKey, id.String())
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.IMAP.Password != "s3cret" {
		t.Errorf("imap.password = %q, want decrypted value", cfg.IMAP.Password)
	}

	t.Setenv(secrets.EnvAgeKey, "")
	t.Setenv(secrets.EnvAgeKeyFile, filepath.Join(t.TempDir(), "missing.key"))
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig with unreadable key file should fail")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("explicit missing config file should fail")
	}
	if _, err := LoadConfig(writeConfig(t, "imap: [unclosed\n")); err == nil {
		t.Error("malformed config file should fail")
	}
}

func TestValidateMailbox(t *testing.T) {
	var cfg Config
	cfg.IMAP.Server = "no-port"
	err := cfg.ValidateMailbox()
	if err == nil {
		t.Fatal("ValidateMailbox should fail")
	}
	want := "invalid mailbox settings: imap.server (hostname_port), imap.username (required), imap.password (required)"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}
}
