package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

// Supported database drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// DefaultDatabaseTimeout bounds connect, execute and commit of one statement.
const DefaultDatabaseTimeout = 10 * time.Second

// DatabaseConfig holds database handler settings.
type DatabaseConfig struct {
	Driver   string        `mapstructure:"driver"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"` // #nosec G117 -- config deserialization, not hardcoded
	Name     string        `mapstructure:"name"`
	Path     string        `mapstructure:"path"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN returns the data source name for the configured driver.
func (c DatabaseConfig) DSN() (string, error) {
	switch c.Driver {
	case DriverMySQL, "":
		if c.Host == "" {
			return "", fmt.Errorf("%w: database.host is empty", ErrNotConfigured)
		}
		port := c.Port
		if port == 0 {
			port = 3306
		}
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
		mc.DBName = c.Name
		mc.Timeout = c.timeout()
		return mc.FormatDSN(), nil
	case DriverSQLite:
		if c.Path == "" {
			return "", fmt.Errorf("%w: database.path is empty", ErrNotConfigured)
		}
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", c.Path, c.timeout().Milliseconds()), nil
	default:
		return "", fmt.Errorf("%w: unknown database driver %q", ErrNotConfigured, c.Driver)
	}
}

func (c DatabaseConfig) driverName() string {
	if c.Driver == "" {
		return DriverMySQL
	}
	return c.Driver
}

func (c DatabaseConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultDatabaseTimeout
	}
	return c.Timeout
}

type databaseHandler struct {
	cfg    DatabaseConfig
	logger zerolog.Logger
}

func newDatabaseHandler(cfg DatabaseConfig, logger zerolog.Logger) *databaseHandler {
	return &databaseHandler{cfg: cfg, logger: logger}
}

// Handle opens a connection for this statement only and closes it before
// returning.
func (h *databaseHandler) Handle(ctx context.Context, svc registry.Service, params command.Params) error {
	spec, ok := svc.Spec.(registry.DatabaseSpec)
	if !ok {
		return fmt.Errorf("%w: %s is %q", ErrSpecMismatch, svc.Action, svc.Kind())
	}

	query, args, err := bindQuery(spec.Query, svc, params)
	if err != nil {
		return err
	}

	dsn, err := h.cfg.DSN()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.timeout())
	defer cancel()

	db, err := sql.Open(h.cfg.driverName(), dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute query: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	rows, _ := res.RowsAffected()
	h.logger.Info().
		Str("action", svc.Action).
		Str("driver", h.cfg.driverName()).
		Int64("rows_affected", rows).
		Msg("database query committed")
	return nil
}

// bindQuery rewrites :name placeholders to ? and returns their values in
// order of appearance. A query without named placeholders binds one value per
// ? in schema order. Text inside single or double quotes, including
// backslash-escaped and doubled quotes, is left alone.
func bindQuery(query string, svc registry.Service, params command.Params) (string, []any, error) {
	var (
		out        strings.Builder
		named      []string
		positional int
		quote      rune
	)
	runes := []rune(query)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			switch {
			case r == '\\' && i+1 < len(runes):
				out.WriteRune(r)
				i++
				r = runes[i]
			case r == quote:
				// A doubled quote closes and reopens the literal.
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			positional++
		case r == ':' && i+1 < len(runes) && isIdentStart(runes[i+1]) && (i == 0 || runes[i-1] != ':'):
			j := i + 1
			for j < len(runes) && isIdentPart(runes[j]) {
				j++
			}
			named = append(named, string(runes[i+1:j]))
			out.WriteRune('?')
			i = j - 1
			continue
		}
		out.WriteRune(r)
	}

	if len(named) > 0 {
		if positional > 0 {
			return "", nil, fmt.Errorf("%w: query mixes :name and ? placeholders", ErrUnboundParameter)
		}
		args := make([]any, 0, len(named))
		for _, name := range named {
			v, ok := params[name]
			if !ok {
				return "", nil, fmt.Errorf("%w: %q", ErrUnboundParameter, name)
			}
			args = append(args, sqlValue(v))
		}
		return out.String(), args, nil
	}

	values := svc.OrderedValues(params)
	if len(values) < positional {
		return "", nil, fmt.Errorf("%w: query needs %d values, got %d", ErrUnboundParameter, positional, len(values))
	}
	args := make([]any, 0, positional)
	for _, v := range values[:positional] {
		args = append(args, sqlValue(v))
	}
	return query, args, nil
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

// sqlValue converts a parameter to a driver-compatible value.
func sqlValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool:
		return x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	default:
		return formatValue(x)
	}
}
