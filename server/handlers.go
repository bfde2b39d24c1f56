package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/storage"
)

// maxBodyBytes caps request bodies; images travel inline as data URIs
// and anything past this would not fit a backend either.
const maxBodyBytes = 64 << 20

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	var (
		records []*core.Record
		err     error
	)
	if r.URL.Query().Get("images") == "full" {
		records, err = s.backend.GetAllRecordsForExport(r.Context())
	} else {
		records, err = s.backend.GetAllRecords(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []*core.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSaveEntry(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeErrorStatus(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var record core.Record
	if err := json.Unmarshal(body, &record); err != nil {
		s.writeErrorStatus(w, http.StatusBadRequest, "malformed record: "+err.Error())
		return
	}
	if err := core.ValidateRecord(&record); err != nil {
		s.writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.backend.SaveRecord(r.Context(), &record); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": record.ID})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	record, err := s.backend.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if record == nil {
		s.writeErrorStatus(w, http.StatusNotFound, "entry not found")
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteRecord(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	value, err := s.backend.GetConfig(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if value == nil {
		s.writeErrorStatus(w, http.StatusNotFound, "config not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(value)
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeErrorStatus(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if !json.Valid(body) {
		s.writeErrorStatus(w, http.StatusBadRequest, "config value must be JSON")
		return
	}

	key := chi.URLParam(r, "key")
	if err := s.backend.SaveConfig(r.Context(), key, body); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.backend.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.ClearAll(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response write failed", "err", err)
	}
}

// writeError maps storage error kinds onto wire statuses. Every error
// payload is {"error": "..."} per the contract.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrQuotaExceeded):
		status = http.StatusInsufficientStorage
	case errors.Is(err, storage.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, storage.ErrSerializationFailed):
		status = http.StatusBadRequest
	}
	s.writeErrorStatus(w, status, err.Error())
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
