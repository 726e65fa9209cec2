package models

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyDLLPath   = errors.New("DLL path is required")
	ErrEmptyTokenName = errors.New("token name is required")
)

// Profile is a token profile: the PKCS#11 module path and the token label
// used when submitting keys. At most one profile is active at a time.
type Profile struct {
	ID        int64     `json:"id"`
	Active    bool      `json:"active"`
	DLLPath   string    `json:"dll_path"`
	TokenName string    `json:"token_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate trims whitespace and checks required fields.
func (p *Profile) Validate() error {
	p.DLLPath = strings.TrimSpace(p.DLLPath)
	p.TokenName = strings.TrimSpace(p.TokenName)
	return errors.Join(
		requireField(p.DLLPath, ErrEmptyDLLPath),
		requireField(p.TokenName, ErrEmptyTokenName),
	)
}

func requireField(v string, err error) error {
	if v == "" {
		return err
	}
	return nil
}

// EventData is the profile_data payload carried by profile events.
func (p Profile) EventData() map[string]any {
	return map[string]any{
		"active":     p.Active,
		"dll_path":   p.DLLPath,
		"token_name": p.TokenName,
	}
}
