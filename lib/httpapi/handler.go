// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi wires snared's HTTP surface: the webhook intake
// handler and the bounded, graceful-shutdown HTTP server that runs it.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/softdevteam/snare/lib/webhook"
)

// maxBodySize caps how much of a request body the handler will read,
// with headroom over GitHub's typical delivery sizes.
const maxBodySize = 10 * 1024 * 1024

// Submitter is the subset of *scheduler.Scheduler the handler needs,
// narrowed for testability.
type Submitter interface {
	Submit(ctx context.Context, fp *webhook.Fingerprint) (httpStatus int, err error)
}

// WebhookHandler accepts POST / deliveries, fingerprints and validates
// them, persists the payload, and hands the result to a Submitter.
type WebhookHandler struct {
	submitter  Submitter
	payloadDir string
	logger     *slog.Logger
}

// NewWebhookHandler builds a WebhookHandler. payloadDir is where
// incoming payloads are persisted before being handed to submitter;
// snared creates this as a private directory under the system
// temporary directory.
func NewWebhookHandler(submitter Submitter, payloadDir string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{submitter: submitter, payloadDir: payloadDir, logger: logger}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		h.logger.Warn("httpapi: reading request body failed", "error", err, "remote_addr", r.RemoteAddr)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(body) > maxBodySize {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	signature := r.Header.Get("X-Hub-Signature-256")

	fp, err := webhook.ParseFingerprint(event, deliveryID, signature, body)
	if err != nil {
		h.logger.Info("httpapi: rejected malformed delivery", "error", err, "remote_addr", r.RemoteAddr)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	payloadPath, err := webhook.PersistPayload(h.payloadDir, body)
	if err != nil {
		h.logger.Error("httpapi: persisting payload failed", "error", err, "key", fp.Key())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	fp.PayloadPath = payloadPath

	status, err := h.submitter.Submit(r.Context(), fp)
	if err != nil {
		h.logger.Warn("httpapi: delivery rejected", "key", fp.Key(), "status", status, "error", err)
		if status != 200 {
			os.Remove(payloadPath)
		}
	} else {
		h.logger.Info("httpapi: delivery accepted", "key", fp.Key(), "event", fp.Event, "delivery_id", fp.DeliveryID)
	}

	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
}
