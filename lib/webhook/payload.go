// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"fmt"
	"os"
)

// PersistPayload writes body verbatim to a new, uniquely-named file
// under dir (mode 0600) and returns its path. The caller owns the
// returned file and is responsible for removing it once the job that
// reads it has finished (or been evicted).
func PersistPayload(dir string, body []byte) (path string, err error) {
	f, err := os.CreateTemp(dir, "snare-payload-*.json")
	if err != nil {
		return "", fmt.Errorf("webhook: creating payload file: %w", err)
	}
	defer f.Close()

	if err := f.Chmod(0o600); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("webhook: setting payload file permissions: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("webhook: writing payload file: %w", err)
	}
	return f.Name(), nil
}
