package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ErrMissingQuery is returned by handlers when the message carries no text.
var ErrMissingQuery = errors.New("missing query text")

// SendFunc answers a tasks/send call.
type SendFunc func(ctx context.Context, p Params) (Result, error)

// GetFunc looks up a task for tasks/get. A nil result means unknown.
type GetFunc func(ctx context.Context, taskID string) (any, error)

// Handler serves the JSON-RPC endpoint of an agent. Protocol errors are
// reported inside the envelope with HTTP 200.
type Handler struct {
	Send SendFunc
	// Get is optional. Without it, or for unknown ids, tasks/get answers
	// {"status":"completed","task_id":id}.
	Get GetFunc
	// AllowData lets a message without text through if it carries a
	// structured part.
	AllowData bool
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, NewError("", CodeInternal, "Internal error: "+err.Error()))
		return
	}
	id := string(req.ID)

	switch req.Method {
	case MethodSend:
		if !h.hasInput(req.Params.Message) {
			writeJSON(w, NewError(id, CodeInvalidParams, "Invalid params: "+ErrMissingQuery.Error()))
			return
		}
		result, err := h.Send(r.Context(), req.Params)
		if errors.Is(err, ErrMissingQuery) {
			writeJSON(w, NewError(id, CodeInvalidParams, "Invalid params: "+ErrMissingQuery.Error()))
			return
		}
		if err != nil {
			slog.Error("tasks/send failed", "id", id, "error", err)
			writeJSON(w, NewError(id, CodeInternal, "Internal error: "+err.Error()))
			return
		}
		resp, err := NewResponse(id, result)
		if err != nil {
			writeJSON(w, NewError(id, CodeInternal, "Internal error: "+err.Error()))
			return
		}
		writeJSON(w, resp)
	case MethodGet:
		taskID := req.Params.ID
		if taskID == "" {
			taskID = id
		}
		var result any = map[string]string{"status": "completed", "task_id": taskID}
		if h.Get != nil {
			found, err := h.Get(r.Context(), taskID)
			if err != nil {
				writeJSON(w, NewError(id, CodeInternal, "Internal error: "+err.Error()))
				return
			}
			if found != nil {
				result = found
			}
		}
		resp, err := NewResponse(id, result)
		if err != nil {
			writeJSON(w, NewError(id, CodeInternal, "Internal error: "+err.Error()))
			return
		}
		writeJSON(w, resp)
	default:
		writeJSON(w, NewError(id, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method)))
	}
}

func (h *Handler) hasInput(m Message) bool {
	if strings.TrimSpace(m.Text()) != "" {
		return true
	}
	if h.AllowData {
		_, ok := m.Data()
		return ok
	}
	return false
}

// HealthHandler serves {"status":"healthy","agent":name}.
func HealthHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Health{Status: "healthy", Agent: name})
	}
}

// CardHandler serves the agent card.
func CardHandler(card func() Card) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, card())
	}
}

// Mount registers /a2a, /health and /.well-known/agent.json on mux.
func Mount(mux *http.ServeMux, h *Handler, name string, card func() Card) {
	mux.Handle("POST /a2a", h)
	mux.Handle("GET /health", HealthHandler(name))
	mux.Handle("GET /.well-known/agent.json", CardHandler(card))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
