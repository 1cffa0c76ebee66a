// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/softdevteam/snare/lib/webhook"
)

type stubSubmitter struct {
	status int
	err    error
	got    *webhook.Fingerprint
}

func (s *stubSubmitter) Submit(_ context.Context, fp *webhook.Fingerprint) (int, error) {
	s.got = fp
	return s.status, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWebhookHandlerAccepts(t *testing.T) {
	t.Parallel()
	sub := &stubSubmitter{status: 200}
	h := NewWebhookHandler(sub, t.TempDir(), discardLogger())

	body := `{"repository":{"full_name":"acme/widget"}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-GitHub-Delivery", "abc-123")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sub.got == nil || sub.got.Key() != "acme/widget" {
		t.Fatalf("submitter received %v", sub.got)
	}
}

func TestWebhookHandlerRejectsNonPost(t *testing.T) {
	t.Parallel()
	sub := &stubSubmitter{status: 200}
	h := NewWebhookHandler(sub, t.TempDir(), discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestWebhookHandlerRejectsOtherPaths(t *testing.T) {
	t.Parallel()
	sub := &stubSubmitter{status: 200}
	h := NewWebhookHandler(sub, t.TempDir(), discardLogger())

	body := `{"repository":{"full_name":"acme/widget"}}`
	req := httptest.NewRequest(http.MethodPost, "/hooks/github", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if sub.got != nil {
		t.Fatalf("submitter should not have been called for a non-root path")
	}
}

func TestWebhookHandlerRejectsMalformedBody(t *testing.T) {
	t.Parallel()
	sub := &stubSubmitter{status: 200}
	h := NewWebhookHandler(sub, t.TempDir(), discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json"))
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookHandlerPropagatesSubmitterStatus(t *testing.T) {
	t.Parallel()
	sub := &stubSubmitter{status: 401}
	h := NewWebhookHandler(sub, t.TempDir(), discardLogger())

	body := `{"repository":{"full_name":"acme/widget"}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
