package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nerrad567/garage-relay/internal/events"
	"github.com/nerrad567/garage-relay/internal/infrastructure/tracing"
)

var (
	errEmptyBody   = errors.New("request body is empty")
	errNotAString  = errors.New("body must be a JSON string or an object with a name")
	errMissingName = errors.New(`object body needs a string "name"`)
)

// registerRequest is the object form of the POST /user body.
type registerRequest struct {
	Name *string `json:"name"`
}

// handleRegisterUser issues a new access key.
//
// The body is either a bare JSON string ("alice") or {"name":"alice"}.
// Names are not deduplicated.
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "api.register_user")
	defer span.End()

	name, err := decodeUserName(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	u, err := s.users.Register(ctx, name)
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.Error("registering user failed", "error", err)
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	span.SetAttributes(attribute.String("user.key_id", events.KeyFingerprint(u.Key)))

	s.events.Publish(ctx, events.Registered(events.SourceAPI, u.Key, u.Name))
	s.logger.Info("user registered", "key_id", events.KeyFingerprint(u.Key))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	fmt.Fprintf(w, "<h1>User code</h1><p>%s</p>", html.EscapeString(u.Key))
}

// decodeUserName accepts a JSON string or an object with a name field.
func decodeUserName(body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", errEmptyBody
	}

	switch data[0] {
	case '{':
		var req registerRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return "", err
		}
		if req.Name == nil {
			return "", errMissingName
		}
		return *req.Name, nil
	case '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return "", err
		}
		return name, nil
	default:
		return "", errNotAString
	}
}
