package zap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/darkzap/dom"
	"github.com/hazyhaar/darkzap/kit"
)

// RegisterHTTP mounts the zap routes under /zap.
func (h *Host) RegisterHTTP(r chi.Router) {
	r.Route("/zap", func(r chi.Router) {
		r.Get("/pages", h.handlePages)
		r.Route("/{page}", func(r chi.Router) {
			r.Get("/", h.handleStatus)
			r.Post("/toggle", h.handleToggle)
			r.Get("/mode", h.handleMode)
			r.Post("/events", h.handleEvents)
			r.Get("/matches", h.handleMatches)
			r.Post("/synthesize", h.handleSynthesize)
			r.Get("/surface", h.handleSurface)
		})
	})
}

func (h *Host) handlePages(w http.ResponseWriter, _ *http.Request) {
	out := []Status{}
	for _, id := range h.Pages() {
		if st, err := h.Status(id); err == nil {
			out = append(out, st)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Host) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Status(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Host) handleToggle(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var err error
	if req.Active != nil {
		err = h.SetActive(page, *req.Active)
	} else {
		_, err = h.Toggle(page)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.handleStatus(w, r)
}

func (h *Host) handleMode(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	active, err := h.Mode(page)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, modeResponse{Page: page, Active: active})
}

// handleEvents accepts a single event object or an array of events.
func (h *Host) handleEvents(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		var ev Event
		if err := json.Unmarshal(body, &ev); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("zap: decode event: %w", err))
			return
		}
		events = []Event{ev}
	}

	ctx := kit.WithPage(r.Context(), page)
	st, err := h.Status(page)
	for _, ev := range events {
		if err != nil {
			break
		}
		st, err = h.Dispatch(ctx, page, ev)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Host) handleMatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	preview, _ := strconv.ParseBool(q.Get("preview"))
	matches, err := h.Matches(chi.URLParam(r, "page"), q.Get("selector"), preview)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (h *Host) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	var req synthesizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		res any
		err error
	)
	if req.Target != "" {
		res, err = h.Commit(page, req.Target, req.level())
	} else {
		res, err = h.CommitAt(page, req.X, req.Y, req.level())
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Host) handleSurface(w http.ResponseWriter, r *http.Request) {
	s, err := h.Surface(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	ms, ok := s.(*MemorySurface)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("zap: surface state not recorded for this page"))
		return
	}
	writeJSON(w, http.StatusOK, ms.State())
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("zap: decode body: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownPage):
		return http.StatusNotFound
	case errors.Is(err, ErrNoTarget):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dom.ErrInvalidSelector):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoStore):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
