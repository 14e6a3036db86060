// Package xmpp implements the chat-presence fallback transport. Recipients
// are addressed as name@chatServer rather than by public key, so the payload
// travels unencrypted over the chat session; this transport ranks below the
// DM transport and is only wired in when explicitly enabled.
package xmpp

import (
	"context"
	"fmt"
	"sync"

	xmppc "github.com/xmppo/go-xmpp"

	"github.com/benthecarman/hermes/internal/domain"
)

// Messenger sends chat messages through a single XMPP session. The
// underlying client is not safe for concurrent use, so sends are serialized
// behind a mutex and the session is re-dialed after a failure.
type Messenger struct {
	opts       xmppc.Options
	chatServer string

	mu     sync.Mutex
	client *xmppc.Client
}

// NewMessenger configures the fallback transport. The session is dialed
// lazily on first send so a missing chat server only fails deliveries that
// actually reach this transport.
func NewMessenger(username, password, server, chatServer string) *Messenger {
	return &Messenger{
		opts: xmppc.Options{
			Host:     server,
			User:     fmt.Sprintf("%s@%s", username, chatServer),
			Password: password,
			NoTLS:    false,
			Debug:    false,
		},
		chatServer: chatServer,
	}
}

// Name identifies the transport in logs and delivery records.
func (m *Messenger) Name() string { return "xmpp" }

// Send delivers payload to name@chatServer as a chat message.
func (m *Messenger) Send(ctx context.Context, contact *domain.Contact, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		client, err := m.opts.NewClient()
		if err != nil {
			return fmt.Errorf("dial xmpp %s: %w", m.opts.Host, err)
		}
		m.client = client
	}

	_, err := m.client.Send(xmppc.Chat{
		Remote: fmt.Sprintf("%s@%s", contact.Name, m.chatServer),
		Type:   "chat",
		Text:   string(payload),
	})
	if err != nil {
		// Session is likely broken; drop it so the next send re-dials.
		_ = m.client.Close()
		m.client = nil
		return fmt.Errorf("send xmpp chat to %s: %w", contact.Name, err)
	}
	return nil
}

// Close tears down the chat session if one was established.
func (m *Messenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}
