// Package sendmail delivers a prepared mbox message over SMTP.
package sendmail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/mail"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/jhillyerd/enmime"

	"github.com/vdavid/listbridge/internal/mbox"
)

// ErrNoRecipients is returned when a message has no usable To or Cc address.
var ErrNoRecipients = errors.New("message has no recipients")

// Options configures the SMTP connection.
type Options struct {
	// Host is host or host:port. The port defaults to 465, or 25 when Insecure.
	Host     string
	Username string
	Password string
	// Insecure uses a plain connection instead of implicit TLS.
	Insecure bool
	// TLSConfig overrides the TLS settings. Optional.
	TLSConfig *tls.Config
}

// Sender sends messages through one SMTP server.
type Sender struct {
	opts Options
}

func NewSender(opts Options) *Sender {
	return &Sender{opts: opts}
}

// Send parses raw (which must have From, To and Subject), records the original sender in
// X-Original-From and delivers it to every To and Cc address.
func (s *Sender) Send(ctx context.Context, raw string) error {
	msg, err := mbox.Parse(raw, false)
	if err != nil {
		return err
	}

	// The mbox envelope line is not part of the message.
	if strings.HasPrefix(raw, "From ") {
		if i := strings.IndexByte(raw, '\n'); i >= 0 {
			raw = raw[i+1:]
		}
	}
	raw = AddHeader(raw, "X-Original-From", msg.From)

	from, recipients, err := envelope(raw)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := s.dial()
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.opts.Host, err)
	}
	defer c.Close()

	if s.opts.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(sasl.NewPlainClient("", s.opts.Username, s.opts.Password)); err != nil {
				return fmt.Errorf("failed to authenticate as %s: %w", s.opts.Username, err)
			}
		} else {
			log.Printf("Warning: %s does not offer AUTH, sending unauthenticated", s.opts.Host)
		}
	}

	if err := c.SendMail(from, recipients, strings.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.MessageID, err)
	}
	if err := c.Quit(); err != nil {
		log.Printf("Warning: SMTP QUIT failed: %v", err)
	}

	log.Printf("Sent %s to %d recipients", msg.MessageID, len(recipients))
	return nil
}

func (s *Sender) dial() (*smtp.Client, error) {
	addr := s.opts.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		port := "465"
		if s.opts.Insecure {
			port = "25"
		}
		addr = net.JoinHostPort(addr, port)
	}

	if s.opts.Insecure {
		return smtp.Dial(addr)
	}
	return smtp.DialTLS(addr, s.opts.TLSConfig)
}

// envelope returns the sender and recipient addresses of a message.
func envelope(raw string) (string, []string, error) {
	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read message: %w", err)
	}

	from := ""
	if addrs, err := env.AddressList("From"); err == nil && len(addrs) > 0 {
		from = addrs[0].Address
	}

	seen := make(map[string]bool)
	var recipients []string
	for _, header := range []string{"To", "Cc"} {
		addrs, err := env.AddressList(header)
		if errors.Is(err, mail.ErrHeaderNotPresent) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("failed to parse %s: %w", header, err)
		}
		for _, addr := range addrs {
			key := strings.ToLower(addr.Address)
			if addr.Address == "" || seen[key] {
				continue
			}
			seen[key] = true
			recipients = append(recipients, addr.Address)
		}
	}

	if len(recipients) == 0 {
		return "", nil, ErrNoRecipients
	}
	return from, recipients, nil
}
