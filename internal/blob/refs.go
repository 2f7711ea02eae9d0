package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Off-chain references are content-addressed: "sha256:<hex digest>" of the
// canonical JSON payload. The digest doubles as the object key, so storing
// the same payload twice is a no-op and a reference can be verified against
// the bytes it points to.
const refScheme = "sha256:"

// RefKey maps a reference to its object key within a store.
func RefKey(ref string) (string, error) {
	digest, ok := strings.CutPrefix(ref, refScheme)
	if !ok || len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("malformed blob ref %q", ref)
	}
	return "sha256/" + digest, nil
}

// PutJSON stores the JSON encoding of v and returns its content-addressed
// reference. A payload already present is left untouched.
func PutJSON(ctx context.Context, store Store, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode blob payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	ref := refScheme + hex.EncodeToString(sum[:])
	key, _ := RefKey(ref)
	if _, err := store.Head(ctx, key); err == nil {
		return ref, nil
	}
	_, err = store.Put(ctx, key, bytes.NewReader(payload), PutOptions{ContentType: "application/json"})
	if err != nil {
		// A concurrent writer storing identical content is success.
		if _, headErr := store.Head(ctx, key); headErr == nil {
			return ref, nil
		}
		return "", err
	}
	return ref, nil
}

// GetJSON resolves a reference, verifies the content digest and decodes the
// payload into v.
func GetJSON(ctx context.Context, store Store, ref string, v any) error {
	key, err := RefKey(ref)
	if err != nil {
		return err
	}
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(payload)
	if refScheme+hex.EncodeToString(sum[:]) != ref {
		return fmt.Errorf("blob %s content does not match its reference", ref)
	}
	return json.Unmarshal(payload, v)
}
