package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nerrad567/garage-relay/internal/events"
	"github.com/nerrad567/garage-relay/internal/infrastructure/tracing"
	"github.com/nerrad567/garage-relay/internal/user"
)

// handleToggle pulses the relay once.
//
// The key in the path is accepted as-is unless
// security.require_registered_key is set, in which case it must belong to
// a registered user. The pulse runs detached from the request context so a
// client that hangs up mid-hold does not leave the line active.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	ctx, span := tracing.StartSpan(r.Context(), "api.toggle")
	defer span.End()

	if s.secCfg.RequireRegisteredKey {
		if _, err := s.users.GetByKey(ctx, key); err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				s.logger.Warn("toggle rejected", "reason", "unknown key")
				writeText(w, http.StatusForbidden, "unknown access key")
				return
			}
			tracing.RecordError(span, err)
			s.logger.Error("looking up access key failed", "error", err)
			writeText(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	plan := s.actuator.Plan()
	span.SetAttributes(
		attribute.Int("gpio.pin", plan.Pin),
		attribute.Int64("gpio.hold_ms", plan.Hold.Milliseconds()),
	)

	start := time.Now()
	err := s.actuator.Pulse(context.WithoutCancel(ctx))
	took := time.Since(start)

	s.events.Publish(ctx, events.Toggled(events.SourceAPI, key, plan.Pin, plan.Hold, took, err))

	if err != nil {
		tracing.RecordError(span, err)
		s.logger.Error("toggle failed",
			"pin", plan.Pin,
			"duration_ms", took.Milliseconds(),
			"error", err,
		)
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("door toggled",
		"pin", plan.Pin,
		"duration_ms", took.Milliseconds(),
	)
	w.WriteHeader(http.StatusOK)
}
