package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	fieldKeySize    = 32
	hexKeyPrefix    = "hex:"
	keyringHKDFSalt = "barter-exchange/field-cipher/v1"
)

// Keyring holds the field-encryption keys loaded at startup. New writes use the active key;
// older key ids stay readable until they are removed from configuration.
type Keyring struct {
	activeID string
	keys     map[string][]byte
}

// NewKeyring builds a keyring from key id -> secret pairs. A secret of the form "hex:<64 hex>"
// is used as raw key material, anything else is stretched with HKDF-SHA256 using the key id as info.
func NewKeyring(activeID string, secrets map[string]string) (*Keyring, error) {
	activeID = strings.TrimSpace(activeID)
	if len(secrets) == 0 {
		return nil, errors.New("field encryption keys are required")
	}
	keys := make(map[string][]byte, len(secrets))
	for id, secret := range secrets {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.New("field encryption key id must not be empty")
		}
		key, err := materializeKey(id, secret)
		if err != nil {
			return nil, fmt.Errorf("field encryption key %q: %w", id, err)
		}
		keys[id] = key
	}
	if activeID == "" {
		if len(keys) != 1 {
			return nil, errors.New("active field encryption key id is required when several keys are configured")
		}
		for id := range keys {
			activeID = id
		}
	}
	if _, ok := keys[activeID]; !ok {
		return nil, fmt.Errorf("active field encryption key %q is not configured", activeID)
	}
	return &Keyring{activeID: activeID, keys: keys}, nil
}

func (k *Keyring) Active() (string, []byte) {
	return k.activeID, k.keys[k.activeID]
}

func (k *Keyring) Key(id string) ([]byte, bool) {
	key, ok := k.keys[id]
	return key, ok
}

func (k *Keyring) IDs() []string {
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ParseKeySpec parses "id=secret,id2=secret2" as used by FIELD_ENCRYPTION_KEYS.
func ParseKeySpec(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, secret, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(id) == "" || strings.TrimSpace(secret) == "" {
			return nil, fmt.Errorf("malformed key entry %q", part)
		}
		out[strings.TrimSpace(id)] = strings.TrimSpace(secret)
	}
	return out, nil
}

func materializeKey(id, secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("secret must not be empty")
	}
	if strings.HasPrefix(secret, hexKeyPrefix) {
		key, err := hex.DecodeString(strings.TrimPrefix(secret, hexKeyPrefix))
		if err != nil {
			return nil, fmt.Errorf("decode hex key: %w", err)
		}
		if len(key) != fieldKeySize {
			return nil, fmt.Errorf("hex key must be %d bytes, got %d", fieldKeySize, len(key))
		}
		return key, nil
	}
	key := make([]byte, fieldKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(keyringHKDFSalt), []byte(id)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}
