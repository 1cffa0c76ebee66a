// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

// Package webhook validates and fingerprints inbound GitHub webhook
// deliveries before anything downstream treats a byte of them as
// trusted. Every owner, repository, and event name extracted here is
// checked against a strict whitelist before snared substitutes it into
// a shell command; there is no quoting layer further down the
// pipeline.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern is the whitelist every owner, repository, and event
// name must satisfy: ASCII letters, digits, dot, underscore, hyphen.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ErrMalformed is returned (wrapped) for any request that fails
// fingerprinting: unparsable JSON, missing repository name, or an
// owner/repo/event string that fails the whitelist.
var ErrMalformed = errors.New("webhook: malformed request")

// Fingerprint is the validated identity of one webhook delivery.
type Fingerprint struct {
	Owner       string
	Repo        string
	Event       string
	DeliveryID  string
	Payload     []byte
	PayloadPath string // set by the caller after persisting Payload via PersistPayload
	Signature   string // raw X-Hub-Signature-256 header value, may be empty
}

// Key returns the "owner/repo" string match rules are evaluated
// against.
func (f Fingerprint) Key() string {
	return f.Owner + "/" + f.Repo
}

type repositoryPayload struct {
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// ParseFingerprint validates a decoded webhook delivery and extracts
// its owner, repository, and event name. event and signature are the
// raw X-GitHub-Event and X-Hub-Signature-256 header values; body is the
// raw request body.
func ParseFingerprint(event, deliveryID, signature string, body []byte) (*Fingerprint, error) {
	if err := validateIdentifier(event); err != nil {
		return nil, fmt.Errorf("%w: event name: %w", ErrMalformed, err)
	}

	var payload repositoryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: parsing JSON body: %w", ErrMalformed, err)
	}

	owner, repo, err := splitFullName(payload.Repository.FullName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return &Fingerprint{
		Owner:      owner,
		Repo:       repo,
		Event:      event,
		DeliveryID: deliveryID,
		Payload:    body,
		Signature:  signature,
	}, nil
}

func splitFullName(fullName string) (owner, repo string, err error) {
	if fullName == "" {
		return "", "", errors.New("missing repository.full_name")
	}
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("repository.full_name %q is not owner/repo", fullName)
	}
	owner, repo = parts[0], parts[1]
	if err := validateIdentifier(owner); err != nil {
		return "", "", fmt.Errorf("owner: %w", err)
	}
	if err := validateIdentifier(repo); err != nil {
		return "", "", fmt.Errorf("repo: %w", err)
	}
	return owner, repo, nil
}

// validateIdentifier enforces the whitelist: only
// [a-zA-Z0-9._-]+, and never exactly "." or "..".
func validateIdentifier(s string) error {
	if s == "" {
		return errors.New("empty identifier")
	}
	if s == "." || s == ".." {
		return fmt.Errorf("identifier %q is not allowed", s)
	}
	if !identifierPattern.MatchString(s) {
		return fmt.Errorf("identifier %q contains disallowed characters", s)
	}
	return nil
}
