// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthenticated is returned (wrapped) whenever a delivery's
// signature cannot be verified against the configured secret.
var ErrUnauthenticated = errors.New("webhook: unauthenticated")

// VerifyHMAC checks signature (the raw X-Hub-Signature-256 header
// value, "sha256=<hex>") against HMAC-SHA-256(secret, body) using a
// constant-time comparison. Both an empty secret with a present
// signature, and a present secret with a missing signature, are
// authentication failures: snare never silently downgrades a
// half-configured signing relationship to "trusted".
//
// When both secret and signature are empty, the request is treated as
// authenticated (the repository has no secret configured); callers
// should log this at warn level, since it means the delivery's origin
// was never checked.
func VerifyHMAC(secret []byte, body []byte, signature string) error {
	if len(secret) == 0 && signature == "" {
		return nil
	}
	if len(secret) == 0 {
		return fmt.Errorf("%w: signature present but no secret is configured for this repository", ErrUnauthenticated)
	}
	if signature == "" {
		return fmt.Errorf("%w: no signature header present", ErrUnauthenticated)
	}

	hexSignature := strings.TrimPrefix(signature, "sha256=")
	signatureBytes, err := hex.DecodeString(hexSignature)
	if err != nil {
		return fmt.Errorf("%w: invalid hex signature: %w", ErrUnauthenticated, err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, signatureBytes) != 1 {
		return fmt.Errorf("%w: signature mismatch", ErrUnauthenticated)
	}
	return nil
}
