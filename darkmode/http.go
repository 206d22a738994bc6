package darkmode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterHTTP mounts the darkmode routes under /darkmode.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Route("/darkmode", func(r chi.Router) {
		r.Get("/sites", s.handleSites)
		r.Put("/sites", s.handleSaveSites)
		r.Post("/sites/{host}/toggle", s.handleToggleSite)
		r.Get("/blacklist/{host}", s.handleBlacklist)
		r.Put("/blacklist/{host}", s.handleSaveBlacklist)
		r.Post("/blacklist/{host}", s.handleAppendBlacklist)
		r.Get("/stylesheet/{host}", s.handleStylesheet)
	})
}

func (s *Service) handleSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Sites(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sitesResponse{Sites: sites})
}

type textBody struct {
	Text      *string  `json:"text,omitempty"`
	Selectors []string `json:"selectors,omitempty"`
	Selector  string   `json:"selector,omitempty"`
}

func (s *Service) handleSaveSites(w http.ResponseWriter, r *http.Request) {
	var body textBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	text := ""
	if body.Text != nil {
		text = *body.Text
	}
	sites, err := s.SaveSitesFromText(r.Context(), text)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sitesResponse{Sites: sites})
}

func (s *Service) handleToggleSite(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	enabled, err := s.ToggleSite(r.Context(), host)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, siteResponse{Host: host, Enabled: enabled})
}

func (s *Service) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	resp, err := s.blacklistResponse(r.Context(), chi.URLParam(r, "host"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSaveBlacklist replaces the list from {"text": ...} or
// {"selectors": [...]}.
func (s *Service) handleSaveBlacklist(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	var body textBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var err error
	if body.Text != nil {
		_, err = s.SaveBlacklistFromText(r.Context(), host, *body.Text)
	} else {
		err = s.SaveBlacklist(r.Context(), host, body.Selectors)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.handleBlacklist(w, r)
}

func (s *Service) handleAppendBlacklist(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	var body textBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Selector == "" {
		writeError(w, http.StatusBadRequest, errors.New("darkmode: selector required"))
		return
	}
	if _, err := s.AppendBlacklist(r.Context(), host, body.Selector); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.handleBlacklist(w, r)
}

func (s *Service) handleStylesheet(w http.ResponseWriter, r *http.Request) {
	css, err := s.Stylesheet(r.Context(), chi.URLParam(r, "host"), r.URL.Query().Get("overlay"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	if css == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	io.WriteString(w, css)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("darkmode: decode body: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	if errors.Is(err, ErrInvalidHost) {
		return http.StatusBadRequest
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
