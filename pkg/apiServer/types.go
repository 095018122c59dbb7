package apiServer

import (
	"context"

	"github.com/sirupsen/logrus"

	notes "github.com/i5heu/ouroboros-notes"
)

const (
	headerRequestID = "X-Request-Id"
	headerKeyID     = "X-Key-Id"
	headerNoteID    = "X-Note-Id"

	indexBody     = "Best service everrr!"
	noteSavedBody = "Note saved"
)

// Notes is the part of the notes service the HTTP surface needs.
type Notes interface {
	IssueToken(ctx context.Context) (notes.Issued, error)
	AddNote(ctx context.Context, contents, token string) (int64, error)
	GetNote(ctx context.Context, id int64, token string) (string, error)
	GetKey(ctx context.Context, id int64) (notes.KeyView, error)
}

type addNoteRequest struct {
	Contents string `json:"contents"`
	Token    string `json:"token"`
}

type Option func(*Server)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}
