package apiServer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	notes "github.com/i5heu/ouroboros-notes"
	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
	"github.com/i5heu/ouroboros-notes/pkg/token"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeText(w, http.StatusOK, indexBody)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	issued, err := s.notes.IssueToken(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set(headerKeyID, strconv.FormatInt(issued.KeyID, 10))
	s.writeText(w, http.StatusOK, issued.Response())
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req addNoteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeText(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	id, err := s.notes.AddNote(r.Context(), req.Contents, req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set(headerNoteID, strconv.FormatInt(id, 10))
	s.writeText(w, http.StatusOK, noteSavedBody)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "note_id")
	if !ok {
		return
	}

	plain, err := s.notes.GetNote(r.Context(), id, queryToken(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeText(w, http.StatusOK, plain)
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "key_id")
	if !ok {
		return
	}

	view, err := s.notes.GetKey(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeText(w, http.StatusOK, view.String())
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeText(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return id, true
}

// queryToken reads the token query parameter. Clients that do not escape
// '+' get it back as a space; tokens contain no spaces after the prefix.
func queryToken(r *http.Request) string {
	tok := token.Strip(r.URL.Query().Get("token"))
	return strings.ReplaceAll(tok, " ", "+")
}

// statusFor maps service errors onto a status code and a client message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, nerrors.ErrTokenFormat):
		return http.StatusBadRequest, nerrors.ErrTokenFormat.Error()
	case errors.Is(err, nerrors.ErrTokenEncoding):
		return http.StatusBadRequest, nerrors.ErrTokenEncoding.Error()
	case errors.Is(err, nerrors.ErrLookup):
		return http.StatusNotFound, nerrors.ErrLookup.Error()
	case errors.Is(err, nerrors.ErrKeyReconstruction):
		return http.StatusUnprocessableEntity, nerrors.ErrKeyReconstruction.Error()
	case errors.Is(err, nerrors.ErrEncryption):
		return http.StatusUnprocessableEntity, nerrors.ErrEncryption.Error()
	case errors.Is(err, nerrors.ErrDecryption):
		return http.StatusUnprocessableEntity, nerrors.ErrDecryption.Error()
	case errors.Is(err, nerrors.ErrTextDecoding):
		return http.StatusUnprocessableEntity, nerrors.ErrTextDecoding.Error()
	case errors.Is(err, nerrors.ErrKeyGenerationTimeout):
		return http.StatusServiceUnavailable, nerrors.ErrKeyGenerationTimeout.Error()
	case errors.Is(err, notes.ErrNotStarted), errors.Is(err, notes.ErrClosed):
		return http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable)
	case errors.Is(err, nerrors.ErrKeyGeneration):
		return http.StatusInternalServerError, nerrors.ErrKeyGeneration.Error()
	case errors.Is(err, nerrors.ErrStore):
		return http.StatusInternalServerError, nerrors.ErrStore.Error()
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)

	entry := s.log.WithFields(logrus.Fields{
		"path":      r.URL.Path,
		"status":    status,
		"requestId": w.Header().Get(headerRequestID),
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	s.writeText(w, status, msg)
}

func (s *Server) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.log.WithError(err).Debug("failed to write response")
	}
}
