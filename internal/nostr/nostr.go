// Package nostr implements the primary delivery transport: an encrypted
// direct message addressed to the recipient's public key, published to the
// recipient's registered relays (falling back to a configured default set).
package nostr

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/rs/zerolog/log"

	"github.com/benthecarman/hermes/internal/domain"
)

// Messenger sends NIP-04 encrypted DMs. It is safe for concurrent use:
// every send dials its relays independently and no connection state is
// shared between calls.
type Messenger struct {
	secretKey     string
	publicKey     string
	defaultRelays []string

	// dialTimeout bounds each relay connection attempt.
	dialTimeout time.Duration
}

// NewMessenger derives the sender identity from the hex secret key.
func NewMessenger(secretKey string, defaultRelays []string) (*Messenger, error) {
	pub, err := nostr.GetPublicKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &Messenger{
		secretKey:     secretKey,
		publicKey:     pub,
		defaultRelays: defaultRelays,
		dialTimeout:   10 * time.Second,
	}, nil
}

// Name identifies the transport in logs and delivery records.
func (m *Messenger) Name() string { return "nostr" }

// Send encrypts payload to the contact's public key and publishes the DM.
// Delivery counts as accepted when at least one relay acknowledges the
// event; per-relay failures are logged and tolerated.
func (m *Messenger) Send(ctx context.Context, contact *domain.Contact, payload []byte) error {
	shared, err := nip04.ComputeSharedSecret(contact.Pubkey, m.secretKey)
	if err != nil {
		return fmt.Errorf("compute shared secret for %s: %w", contact.Name, err)
	}
	ciphertext, err := nip04.Encrypt(string(payload), shared)
	if err != nil {
		return fmt.Errorf("encrypt dm for %s: %w", contact.Name, err)
	}

	ev := nostr.Event{
		PubKey:    m.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindEncryptedDirectMessage,
		Tags:      nostr.Tags{nostr.Tag{"p", contact.Pubkey}},
		Content:   ciphertext,
	}
	if err := ev.Sign(m.secretKey); err != nil {
		return fmt.Errorf("sign dm: %w", err)
	}

	relays := contact.RelayList()
	if len(relays) == 0 {
		relays = m.defaultRelays
	}
	if len(relays) == 0 {
		return fmt.Errorf("no relays known for %s", contact.Name)
	}

	var lastErr error
	accepted := 0
	for _, url := range relays {
		if err := m.publish(ctx, url, ev); err != nil {
			lastErr = err
			log.Warn().Err(err).Str("relay", url).Str("recipient", contact.Name).Msg("relay rejected dm")
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return fmt.Errorf("no relay accepted dm for %s: %w", contact.Name, lastErr)
	}
	return nil
}

func (m *Messenger) publish(ctx context.Context, url string, ev nostr.Event) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()

	relay, err := nostr.RelayConnect(dialCtx, url)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer relay.Close()

	if err := relay.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish to %s: %w", url, err)
	}
	return nil
}
