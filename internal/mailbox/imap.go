package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds each IMAP exchange.
const DefaultTimeout = 30 * time.Second

// Config holds IMAP connection settings.
type Config struct {
	Server   string        `mapstructure:"server"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"` // #nosec G117 -- config deserialization, not hardcoded
	Mailbox  string        `mapstructure:"mailbox"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// imapSession implements Session over one logged-in IMAP connection.
type imapSession struct {
	conn    net.Conn
	client  *imapclient.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewDialer returns a Dialer that connects, logs in and selects the
// configured mailbox.
func NewDialer(cfg Config, logger zerolog.Logger) Dialer {
	logger = logger.With().Str("component", "imap").Logger()
	return func(ctx context.Context) (Session, error) {
		return dialIMAP(ctx, cfg, logger)
	}
}

func dialIMAP(ctx context.Context, cfg Config, logger zerolog.Logger) (*imapSession, error) {
	conn, err := dialConn(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial IMAP %s: %w", cfg.Server, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &imapSession{
		conn:    conn,
		client:  imapclient.New(conn, nil),
		timeout: timeout,
		logger:  logger,
	}
	done, err := s.deadline(ctx)
	if err != nil {
		s.client.Close()
		return nil, err
	}
	defer done()

	if err := s.client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		s.client.Close()
		return nil, fmt.Errorf("login IMAP: %w", err)
	}

	folder := cfg.Mailbox
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := s.client.Select(folder, nil).Wait(); err != nil {
		s.client.Close()
		return nil, fmt.Errorf("select %s: %w", folder, err)
	}

	logger.Debug().Str("server", cfg.Server).Str("mailbox", folder).Msg("mailbox opened")
	return s, nil
}

// deadline bounds the next exchange by ctx and the session timeout. The
// connection is closed if either expires first, failing every pending command.
// imapclient owns the read deadline, so the bound closes the conn instead.
func (s *imapSession) deadline(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	return func() {
		stop()
		cancel()
	}, nil
}

func dialConn(ctx context.Context, cfg Config) (net.Conn, error) {
	if !cfg.TLS {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", cfg.Server)
	}
	host, _, err := net.SplitHostPort(cfg.Server)
	if err != nil {
		return nil, err
	}
	d := tls.Dialer{Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
	return d.DialContext(ctx, "tcp", cfg.Server)
}

// ListUnseen fetches every message without the \Seen flag. Bodies are
// fetched with PEEK so listing does not change flags.
func (s *imapSession) ListUnseen(ctx context.Context) ([]Message, error) {
	done, err := s.deadline(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	uidSet, ok := searchData.All.(imap.UIDSet)
	if !ok || len(uidSet) == 0 {
		return nil, nil
	}

	fetchOpts := &imap.FetchOptions{
		UID: true,
		BodySection: []*imap.FetchItemBodySection{
			{Peek: true},
		},
	}
	fetchCmd := s.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var messages []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		var (
			uid uint32
			raw []byte
		)
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch data := item.(type) {
			case imapclient.FetchItemDataUID:
				uid = uint32(data.UID)
			case imapclient.FetchItemDataBodySection:
				raw, err = io.ReadAll(data.Literal)
				if err != nil {
					return nil, fmt.Errorf("read message body: %w", err)
				}
			}
		}
		if uid == 0 {
			continue
		}

		m, err := parseMessage(uid, raw)
		if err != nil {
			// Keep the message so it is still marked seen.
			s.logger.Warn().Err(err).Uint32("uid", uid).Msg("unparsable message")
			m = Message{UID: uid}
		}
		messages = append(messages, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetch close: %w", err)
	}
	return messages, nil
}

// MarkSeen adds \Seen to the message with uid.
func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	done, err := s.deadline(ctx)
	if err != nil {
		return err
	}
	defer done()

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(uid))

	store := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	if err := s.client.Store(uidSet, store, nil).Close(); err != nil {
		return fmt.Errorf("store \\Seen on %d: %w", uid, err)
	}
	return nil
}

// Close logs out and closes the connection.
func (s *imapSession) Close() error {
	done, _ := s.deadline(context.Background())
	defer done()

	if err := s.client.Logout().Wait(); err != nil {
		s.client.Close()
		return fmt.Errorf("logout: %w", err)
	}
	return s.client.Close()
}
