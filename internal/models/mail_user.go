package models

import "time"

// MailUser is a user whose mailbox has been connected and can be swept.
type MailUser struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Secret is an encrypted blob addressed by owner and name.
type Secret struct {
	OwnerID    string    `db:"owner_id"`
	Name       string    `db:"name"`
	Ciphertext []byte    `db:"ciphertext"`
	UpdatedAt  time.Time `db:"updated_at"`
}
