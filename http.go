package capwatch

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/capwatch/caption"
)

// Handler builds the control plane router. overlay and metricsHandler are
// mounted at /ws and /metrics when non-nil.
//
//	GET  /health
//	GET  /sessions
//	POST /sessions/{id}          body: caption.Command
//	POST /sessions/{id}/start    body (optional): {"target_language", "voice_id"}
//	POST /sessions/{id}/stop
//	POST /sessions/{id}/skip     body: {"text"}
func (s *Service) Handler(overlay, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, s.Sessions())
		})

		r.Post("/{id}", func(w http.ResponseWriter, r *http.Request) {
			var cmd caption.Command
			if err := decodeBody(r, &cmd); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			s.respond(w, r, cmd)
		})

		r.Post("/{id}/start", func(w http.ResponseWriter, r *http.Request) {
			var cmd caption.Command
			if err := decodeBody(r, &cmd); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			cmd.Command = caption.CommandStart
			s.respond(w, r, cmd)
		})

		r.Post("/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
			s.respond(w, r, caption.Command{Command: caption.CommandStop})
		})

		r.Post("/{id}/skip", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Text string `json:"text"`
			}
			if err := decodeBody(r, &req); err != nil || req.Text == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
				return
			}
			if err := s.Skip(chi.URLParam(r, "id"), req.Text); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
		})
	})

	if overlay != nil {
		r.Handle("/ws", overlay)
	}
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	return r
}

func (s *Service) respond(w http.ResponseWriter, r *http.Request, cmd caption.Command) {
	info, err := s.Handle(r.Context(), chi.URLParam(r, "id"), cmd)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// decodeBody decodes JSON into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownMeeting):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrNoLanguage):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
