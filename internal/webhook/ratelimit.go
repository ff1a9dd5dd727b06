// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package webhook

import (
	"context"
	"log/slog"
	"time"
)

const (
	// rateLimitWindow is the rolling window per caller identifier.
	rateLimitWindow = 60 * time.Second

	// rateLimitMax is the per-window callback budget. Request #31
	// inside the window is refused.
	rateLimitMax = 30
)

// rateLimited records one event for the identifier and reports whether
// the caller exceeded the rolling-window budget. The counter lives in
// the shared store so every webhook instance enforces one limit.
//
// Store failures are fail-open: availability of the approval flow
// outranks limiter strictness.
func (s *Server) rateLimited(ctx context.Context, identifier string, logger *slog.Logger) bool {
	if err := s.store.InsertRateLimitEvent(ctx, identifier); err != nil {
		logger.Warn("rate limit insert failed, failing open", "error", err)
		return false
	}

	count, err := s.store.CountRateLimitEvents(ctx, identifier, s.now().Add(-rateLimitWindow))
	if err != nil {
		logger.Warn("rate limit count failed, failing open", "error", err)
		return false
	}
	return count > rateLimitMax
}
