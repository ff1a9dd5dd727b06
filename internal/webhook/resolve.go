// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/paduck86/claude-remote-guard/internal/identity"
	"github.com/paduck86/claude-remote-guard/internal/store"
)

// Callback actions shared by every provider handler.
const (
	actionApprove = "approve"
	actionReject  = "reject"
)

// resolveOutcome is the result of the shared pipeline steps: row
// fetch, freshness, identity check, and transition.
type resolveOutcome int

const (
	outcomeResolved resolveOutcome = iota
	outcomeAlreadyResolved
	outcomeNotFound
	outcomeExpired
	outcomeBadIdentity
	outcomeRaceLost
	outcomeStoreError
)

// httpStatus maps an outcome to its response status. "Already
// resolved" is a 200 — provider retries must be idempotent, not
// errors.
func (o resolveOutcome) httpStatus() int {
	switch o {
	case outcomeResolved, outcomeAlreadyResolved:
		return http.StatusOK
	case outcomeNotFound:
		return http.StatusNotFound
	case outcomeExpired:
		return http.StatusGone
	case outcomeBadIdentity:
		return http.StatusForbidden
	case outcomeRaceLost:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the short acknowledgement shown to the approver.
func (o resolveOutcome) userMessage(action string) string {
	switch o {
	case outcomeResolved:
		if action == actionApprove {
			return "✅ Command approved"
		}
		return "❌ Command rejected"
	case outcomeAlreadyResolved, outcomeRaceLost:
		return "Request already resolved"
	case outcomeNotFound:
		return "Request not found"
	case outcomeExpired:
		return "Request expired"
	case outcomeBadIdentity:
		return "Invalid signature"
	default:
		return "Internal error, please retry"
	}
}

// validRequestID matches canonical v4 identifiers and nothing else.
func validRequestID(id string) bool {
	u, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	// uuid.Parse accepts urn: and braced forms; require the canonical
	// 36-character rendering and the v4 version bits.
	return u.String() == id && u.Version() == 4
}

// resolve runs pipeline steps 5–8 for an authenticated callback:
// fetch, freshness, machine-identity verification, and the guarded
// transition. requestID must already be validated.
func (s *Server) resolve(ctx context.Context, action, requestID, resolvedBy string, logger *slog.Logger) resolveOutcome {
	row, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcomeNotFound
		}
		logger.Error("row fetch failed", "error", err)
		return outcomeStoreError
	}

	if row.Status != store.StatusPending {
		return outcomeAlreadyResolved
	}

	// Independent of the store's SELECT freshness policy — both guards
	// must hold.
	if s.now().Sub(row.CreatedAt) > requestFreshness {
		return outcomeExpired
	}

	if err := s.verifyMachineIdentity(row.MachineID, logger); err != nil {
		logger.Warn("machine identity rejected", "id", requestID, "error", err)
		return outcomeBadIdentity
	}

	status := store.StatusRejected
	if action == actionApprove {
		status = store.StatusApproved
	}

	affected, err := s.store.ResolvePending(ctx, requestID, status, resolvedBy, s.now())
	if err != nil {
		logger.Error("transition failed", "error", err)
		return outcomeStoreError
	}
	if affected == 0 {
		// Lost the race between fetch and update.
		return outcomeRaceLost
	}

	logger.Info("request resolved", "id", requestID, "status", status, "by", resolvedBy)
	return outcomeResolved
}

// verifyMachineIdentity checks the row's signed identifier. With no
// secret provisioned this degrades to a format-only check — a
// compatibility fallback, flagged once per process in the logs.
func (s *Server) verifyMachineIdentity(machineID string, logger *slog.Logger) error {
	if machineID == "" {
		return nil
	}
	if s.cfg.MachineIDSecret == "" {
		logger.Warn("machine identity secret not provisioned; format check only")
		_, err := identity.CheckFormat(machineID)
		return err
	}
	_, err := identity.NewSigner(s.cfg.MachineIDSecret).Verify(machineID, s.now())
	return err
}
