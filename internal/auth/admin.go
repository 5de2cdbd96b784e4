package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Admin is the single management account configured at startup. Only the
// bcrypt hash of its password is kept in memory.
type Admin struct {
	email    string
	passHash []byte
}

func NewAdmin(email, password string) (*Admin, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &Admin{email: email, passHash: hash}, nil
}

func (a *Admin) Verify(email, password string) bool {
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(a.email)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.passHash, []byte(password)) == nil
	return emailOK && passOK
}
