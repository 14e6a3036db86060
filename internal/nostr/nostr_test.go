package nostr

import (
	"context"
	"strings"
	"testing"

	gonostr "github.com/nbd-wtf/go-nostr"

	"github.com/benthecarman/hermes/internal/domain"
)

func TestNewMessenger(t *testing.T) {
	sk := gonostr.GeneratePrivateKey()
	m, err := NewMessenger(sk, []string{"wss://relay.example.com"})
	if err != nil {
		t.Fatalf("NewMessenger: %v", err)
	}
	if m.Name() != "nostr" {
		t.Errorf("name = %q", m.Name())
	}
	want, _ := gonostr.GetPublicKey(sk)
	if m.publicKey != want {
		t.Errorf("derived pubkey = %q, want %q", m.publicKey, want)
	}
}

func TestNewMessengerBadKey(t *testing.T) {
	if _, err := NewMessenger("not-hex", nil); err == nil {
		t.Fatal("expected error for malformed secret key")
	}
}

func TestSendNoRelaysKnown(t *testing.T) {
	m, err := NewMessenger(gonostr.GeneratePrivateKey(), nil)
	if err != nil {
		t.Fatalf("NewMessenger: %v", err)
	}

	recipientSK := gonostr.GeneratePrivateKey()
	recipientPK, _ := gonostr.GetPublicKey(recipientSK)
	contact := &domain.Contact{Name: "alice", Pubkey: recipientPK}

	err = m.Send(context.Background(), contact, []byte(`{"notes":"x"}`))
	if err == nil {
		t.Fatal("expected error when neither contact nor defaults name a relay")
	}
	if !strings.Contains(err.Error(), "no relays") {
		t.Errorf("err = %v", err)
	}
}

func TestRelayFallbackOrder(t *testing.T) {
	m, err := NewMessenger(gonostr.GeneratePrivateKey(), []string{"wss://default.example.com"})
	if err != nil {
		t.Fatalf("NewMessenger: %v", err)
	}

	contact := &domain.Contact{Name: "alice", Relays: "wss://a.example.com,wss://b.example.com"}
	if got := contact.RelayList(); len(got) != 2 {
		t.Fatalf("contact relays = %v", got)
	}

	// A contact without registered relays falls back to the configured set.
	bare := &domain.Contact{Name: "bob"}
	if got := bare.RelayList(); len(got) != 0 {
		t.Fatalf("bare contact relays = %v", got)
	}
	if len(m.defaultRelays) != 1 {
		t.Fatalf("default relays = %v", m.defaultRelays)
	}
}
