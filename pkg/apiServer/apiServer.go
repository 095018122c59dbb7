// Package apiServer exposes the notes service over HTTP.
package apiServer

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type Server struct {
	mux   *http.ServeMux
	notes Notes
	log   *logrus.Logger
}

func New(notes Notes, opts ...Option) *Server {
	s := &Server{
		mux:   http.NewServeMux(),
		notes: notes,
		log:   logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /get_token", s.handleGetToken)
	s.mux.HandleFunc("POST /add_note", s.handleAddNote)
	s.mux.HandleFunc("GET /note/{note_id}", s.handleGetNote)
	s.mux.HandleFunc("GET /keys/{key_id}", s.handleGetKey)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get(headerRequestID)
	if _, err := uuid.Parse(requestID); err != nil {
		requestID = uuid.NewString()
	}
	w.Header().Set(headerRequestID, requestID)

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Expose-Headers", "X-Key-Id, X-Note-Id, X-Request-Id")

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	if r.Method == http.MethodOptions {
		rec.WriteHeader(http.StatusNoContent)
	} else {
		s.mux.ServeHTTP(rec, r)
	}

	s.log.WithFields(logrus.Fields{
		"method":    r.Method,
		"path":      r.URL.Path,
		"status":    rec.status,
		"duration":  time.Since(start).String(),
		"requestId": requestID,
	}).Info("request")
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
