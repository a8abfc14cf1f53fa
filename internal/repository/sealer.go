package repository

import (
	"encoding/base64"
	"fmt"
)

// Sealer protects the notification password at rest. Real platform crypto
// is wired in by the outer layer, the core only needs the two operations.
type Sealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

const sealedPrefix = "b64:"

// Base64Sealer is the built-in fallback sealer. It is obfuscation, not
// encryption, and exists so a repository without a platform sealer still
// never writes the password verbatim.
type Base64Sealer struct{}

func (Base64Sealer) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	return sealedPrefix + base64.StdEncoding.EncodeToString([]byte(plain)), nil
}

func (Base64Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if len(sealed) < len(sealedPrefix) || sealed[:len(sealedPrefix)] != sealedPrefix {
		return "", fmt.Errorf("unrecognized sealed value")
	}

	b, err := base64.StdEncoding.DecodeString(sealed[len(sealedPrefix):])
	if err != nil {
		return "", fmt.Errorf("cannot open sealed value: %w", err)
	}

	return string(b), nil
}
