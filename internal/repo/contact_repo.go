// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read access to the recipient directory:
// the mapping from public usernames to messaging public keys and relays.
//
// Contacts are registered and mutated by an external subsystem; the
// settlement pipeline only resolves them, so no update or delete functions
// exist here. CreateContact is provided for bootstrap and tests.
package repo

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/benthecarman/hermes/internal/domain"
)

// GetContactByName resolves a username to its registered contact record.
// Lookup is case-insensitive on the stored lowercase name. Returns
// ErrNotFound when no registration exists.
func GetContactByName(ctx context.Context, db *gorm.DB, name string) (*domain.Contact, error) {
	var c domain.Contact
	err := db.WithContext(ctx).
		Where("name = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateContact inserts a contact row. Names are stored lowercase so the
// directory lookup stays case-insensitive.
func CreateContact(ctx context.Context, db *gorm.DB, name, pubkey string, relays []string) (*domain.Contact, error) {
	c := &domain.Contact{
		ID:     uuid.NewString(),
		Name:   strings.ToLower(strings.TrimSpace(name)),
		Pubkey: pubkey,
		Relays: strings.Join(relays, ","),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}
