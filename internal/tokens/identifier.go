package tokens

import (
	"errors"
	"strings"
	"time"
)

// Purpose tags what a verification token authorizes.
type Purpose string

const (
	PurposeInvite Purpose = "invite"
	PurposeReset  Purpose = "reset"
	PurposeVerify Purpose = "verify"
)

// TTL returns the validity window for tokens of this purpose.
func (p Purpose) TTL() time.Duration {
	switch p {
	case PurposeInvite:
		return 7 * 24 * time.Hour
	case PurposeReset:
		return time.Hour
	case PurposeVerify:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the purpose is known.
func (p Purpose) Valid() bool {
	return p.TTL() > 0
}

const identifierSeparator = ":"

// ErrMalformedIdentifier indicates a stored identifier could not be parsed.
var ErrMalformedIdentifier = errors.New("tokens: malformed identifier")

// Identifier binds a token to a purpose and the subject it acts on.
type Identifier struct {
	Purpose   Purpose
	SubjectID string
}

// NewIdentifier builds an identifier for the given purpose and subject.
func NewIdentifier(purpose Purpose, subjectID string) Identifier {
	return Identifier{Purpose: purpose, SubjectID: subjectID}
}

// String returns the stored form, e.g. "reset:<userId>".
func (id Identifier) String() string {
	return string(id.Purpose) + identifierSeparator + id.SubjectID
}

func (id Identifier) validate() error {
	if !id.Purpose.Valid() || strings.TrimSpace(id.SubjectID) == "" || strings.Contains(id.SubjectID, identifierSeparator) {
		return ErrMalformedIdentifier
	}
	return nil
}

// ParseIdentifier parses the stored form back into an Identifier.
func ParseIdentifier(raw string) (Identifier, error) {
	parts := strings.Split(raw, identifierSeparator)
	if len(parts) != 2 {
		return Identifier{}, ErrMalformedIdentifier
	}
	id := Identifier{Purpose: Purpose(parts[0]), SubjectID: parts[1]}
	if errValidate := id.validate(); errValidate != nil {
		return Identifier{}, errValidate
	}
	return id, nil
}
