package testutil

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// ReceivedMessage is one message accepted by the test SMTP server.
type ReceivedMessage struct {
	From string
	To   []string
	Data []byte
}

// MemoryBackend is an in-memory SMTP backend that records every delivered message.
type MemoryBackend struct {
	mu       sync.Mutex
	messages []ReceivedMessage
	username string
	password string
}

func (b *MemoryBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &memorySession{backend: b}, nil
}

// Messages returns a copy of the received messages.
func (b *MemoryBackend) Messages() []ReceivedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ReceivedMessage(nil), b.messages...)
}

type memorySession struct {
	backend *MemoryBackend
	authed  string
	from    string
	to      []string
}

func (s *memorySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *memorySession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.backend.username || password != s.backend.password {
			return errors.New("invalid credentials")
		}
		s.authed = username
		return nil
	}), nil
}

func (s *memorySession) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *memorySession) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *memorySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, ReceivedMessage{
		From: s.from,
		To:   s.to,
		Data: data,
	})
	return nil
}

func (s *memorySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *memorySession) Logout() error {
	return nil
}

// TestSMTPServer is a plain-text SMTP server on a random local port.
type TestSMTPServer struct {
	Address  string
	Backend  *MemoryBackend
	Username string
	Password string
}

// NewTestSMTPServer starts a server that accepts PLAIN auth with Username/Password.
// It is closed when the test finishes.
func NewTestSMTPServer(t *testing.T) *TestSMTPServer {
	t.Helper()

	be := &MemoryBackend{username: "test-user", password: "test-pass"}

	s := smtp.NewServer(be)
	s.AllowInsecureAuth = true
	s.Domain = "localhost"

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		if err := s.Serve(listener); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			t.Logf("SMTP server error: %v", err)
		}
	}()

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("Failed to close SMTP server: %v", err)
		}
	})

	return &TestSMTPServer{
		Address:  listener.Addr().String(),
		Backend:  be,
		Username: be.username,
		Password: be.password,
	}
}
