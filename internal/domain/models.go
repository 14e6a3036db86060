// Package domain defines the persistence models for invoices, recipient
// contacts, and note deliveries. These types are mapped with GORM and form
// the core data layer of the LNURL-pay settlement pipeline.
package domain

import (
	"strings"
	"time"
)

// Invoice lifecycle states. An invoice is created pending, settled exactly
// once by the settlement watcher, or expired when the payment is canceled or
// the expiry deadline passes without a claim.
const (
	InvoicePending = "pending"
	InvoiceSettled = "settled"
	InvoiceExpired = "expired"
)

// NoteDelivery lifecycle states. A delivery row exists from the moment notes
// are minted; it becomes delivered once a transport accepts the payload.
const (
	DeliveryMinted    = "minted"
	DeliveryDelivered = "delivered"
)

// Invoice is the durable record of one LNURL-pay callback request. The row
// and its Status are the checkpoint that survives a process restart; the
// in-memory watcher is re-derived from pending rows at startup.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OperationID: correlation id issued by the federation client for the
//     invoice's payment-status stream; unique.
//   - Username: the recipient the callback was addressed to.
//   - AmountMsat: requested amount in millisatoshi; immutable after creation.
//   - Bolt11: the encoded invoice returned to the payer; immutable.
//   - Status: pending | settled | expired.
//   - SettledAt: set when the settle transition succeeds.
type Invoice struct {
	ID          string     `json:"id"           gorm:"type:char(36);primaryKey"`
	OperationID string     `json:"operation_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_invoices_op_id"`
	Username    string     `json:"username"     gorm:"type:varchar(64);not null;index"`
	AmountMsat  int64      `json:"amount_msat"  gorm:"not null;check:amount_msat > 0"`
	Bolt11      string     `json:"bolt11"       gorm:"type:text;not null"`
	Status      string     `json:"status"       gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('pending','settled','expired')"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Invoice.
func (Invoice) TableName() string { return "invoices" }

// Settled reports whether the invoice has reached the settled state.
func (i *Invoice) Settled() bool { return i.Status == InvoiceSettled }

// Contact maps a public username to a messaging public key and the relay
// endpoints delivery should be attempted through. Rows are owned by the
// registration subsystem; this core only reads them.
type Contact struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name"    gorm:"type:varchar(64);not null;uniqueIndex:ux_contacts_name"`
	Pubkey    string    `json:"pubkey"  gorm:"type:char(64);not null"`
	Relays    string    `json:"relays"  gorm:"type:text;not null"` // comma-joined, ordered
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string { return "contacts" }

// RelayList splits the stored relay string into its ordered endpoints,
// dropping empties.
func (c *Contact) RelayList() []string {
	if c.Relays == "" {
		return nil
	}
	parts := strings.Split(c.Relays, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NoteDelivery is the durable checkpoint between minting and delivery.
// Minting commits real value, so the row is written immediately after a
// successful mint and before the first send attempt; a send failure leaves
// the row at minted and a later sweep resends the same notes without
// minting again.
//
// InvoiceID is unique: at most one delivery sequence exists per invoice.
type NoteDelivery struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	InvoiceID       string    `json:"invoice_id"        gorm:"type:char(36);not null;uniqueIndex:ux_deliveries_invoice"`
	MintOperationID string    `json:"mint_operation_id" gorm:"type:varchar(64);not null"`
	AmountMsat      int64     `json:"amount_msat"       gorm:"not null"`
	Notes           string    `json:"notes"             gorm:"type:text;not null"`
	Recipient       string    `json:"recipient"         gorm:"type:char(64);not null"`
	Status          string    `json:"status"            gorm:"type:varchar(16);not null;default:'minted';index;check:status IN ('minted','delivered')"`
	Attempts        int       `json:"attempts"          gorm:"not null;default:0"`
	LastError       string    `json:"last_error"        gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for NoteDelivery.
func (NoteDelivery) TableName() string { return "note_deliveries" }
