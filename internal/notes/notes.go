// Package notes defines the key-value store the mirror persists its state in.
//
// Keys are never stored verbatim: they are hashed the way `git hash-object`
// hashes a blob holding the key plus a newline. Stores that predate this
// program (git notes attached to those blobs) therefore keep working.
package notes

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNoteExists is returned by Set when the key is taken and force is false.
var ErrNoteExists = errors.New("note already exists")

// Store is a persistent map from hashed keys to JSON documents.
type Store interface {
	// Get loads the value for key into v. It reports false if there is no such note.
	Get(ctx context.Context, key string, v any) (bool, error)
	// Set stores v under key. Without force, an existing note is left alone and ErrNoteExists is returned.
	Set(ctx context.Context, key string, v any, force bool) error
	// Keys lists the hashes of all stored keys.
	Keys(ctx context.Context) ([]string, error)
}

// HashKey returns the object name Git would give a blob containing key and a trailing newline.
func HashKey(key string) string {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(key)+1) + "\x00"))
	h.Write([]byte(key + "\n"))
	return hex.EncodeToString(h.Sum(nil))
}

// Get is a typed wrapper around Store.Get. It returns nil if the note does not exist.
func Get[T any](ctx context.Context, store Store, key string) (*T, error) {
	var v T
	found, err := store.Get(ctx, key, &v)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &v, nil
}

// Encode marshals a note value.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode note: %w", err)
	}
	return data, nil
}

// Decode unmarshals a note value into v.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode note: %w", err)
	}
	return nil
}
