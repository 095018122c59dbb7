package apiServer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	notes "github.com/i5heu/ouroboros-notes"
	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
	"github.com/i5heu/ouroboros-notes/internal/testutil"
)

func testLogger() *logrus.Logger {
	return testutil.QuietLogger()
}

func newTestService(t *testing.T) *notes.Service {
	t.Helper()
	conf := notes.DefaultConfig()
	conf.KeyBits = 128
	conf.KeygenWorkers = 1
	conf.Store.InMemory = true
	conf.Store.GCInterval = 0
	conf.Logger = testLogger()

	svc, err := notes.New(conf)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc
}

func do(server http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func addNoteRequestBody(t *testing.T, contents, token string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(addNoteRequest{Contents: contents, Token: token})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(body)
}

func TestIndex(t *testing.T) {
	server := New(newTestService(t), WithLogger(testLogger()))

	rec := do(server, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "Best service everrr!" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if _, err := uuid.Parse(rec.Header().Get("X-Request-Id")); err != nil {
		t.Fatalf("expected a request id, got %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	server := New(newTestService(t), WithLogger(testLogger()))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", id)
	rec := do(server, req)
	if got := rec.Header().Get("X-Request-Id"); got != id {
		t.Fatalf("expected request id %q, got %q", id, got)
	}
}

func TestTokenNoteRoundTrip(t *testing.T) {
	server := New(newTestService(t), WithLogger(testLogger()))

	tokenRec := do(server, httptest.NewRequest(http.MethodGet, "/get_token", nil))
	if tokenRec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, tokenRec.Code, tokenRec.Body.String())
	}
	body := tokenRec.Body.String()
	if !strings.HasPrefix(body, "Token ") {
		t.Fatalf("expected token response, got %q", body)
	}
	tok := strings.TrimPrefix(body, "Token ")
	keyID := tokenRec.Header().Get("X-Key-Id")
	if keyID != "1" {
		t.Fatalf("expected key id 1, got %q", keyID)
	}

	addRec := do(server, httptest.NewRequest(http.MethodPost, "/add_note", addNoteRequestBody(t, "hello", tok)))
	if addRec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, addRec.Code, addRec.Body.String())
	}
	if addRec.Body.String() != "Note saved" {
		t.Fatalf("unexpected body %q", addRec.Body.String())
	}
	noteID := addRec.Header().Get("X-Note-Id")

	getRec := do(server, httptest.NewRequest(http.MethodGet, "/note/"+noteID+"?token="+url.QueryEscape(tok), nil))
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, getRec.Code, getRec.Body.String())
	}
	if getRec.Body.String() != "hello" {
		t.Fatalf("expected hello, got %q", getRec.Body.String())
	}

	// an unescaped '+' arrives as a space
	rawRec := do(server, httptest.NewRequest(http.MethodGet, "/note/"+noteID+"?token="+strings.ReplaceAll(url.PathEscape(tok), "%2B", "+"), nil))
	if rawRec.Code != http.StatusOK || rawRec.Body.String() != "hello" {
		t.Fatalf("expected unescaped token to work, got %d %q", rawRec.Code, rawRec.Body.String())
	}

	keyRec := do(server, httptest.NewRequest(http.MethodGet, "/keys/"+keyID, nil))
	if keyRec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, keyRec.Code)
	}
	parts := strings.Split(tok, ":")
	want := fmt.Sprintf("n: %s\ne: %s", parts[2], parts[1])
	if keyRec.Body.String() != want {
		t.Fatalf("expected %q, got %q", want, keyRec.Body.String())
	}
}

func TestErrorStatuses(t *testing.T) {
	server := New(newTestService(t), WithLogger(testLogger()))

	tokenRec := do(server, httptest.NewRequest(http.MethodGet, "/get_token", nil))
	tok := strings.TrimPrefix(tokenRec.Body.String(), "Token ")

	tests := []struct {
		name   string
		req    *http.Request
		status int
		body   string
	}{
		{"short token", httptest.NewRequest(http.MethodGet, "/note/1?token=a:b:c:d", nil), http.StatusBadRequest, "wrong token format"},
		{"oversized token", httptest.NewRequest(http.MethodGet, "/note/1?token="+strings.Repeat("A", 4096)+":AQ==:AQ==:AQ==:AQ==", nil), http.StatusBadRequest, "wrong token format"},
		{"bad base64", httptest.NewRequest(http.MethodGet, "/note/1?token=%21:AQ==:AQ==:AQ==:AQ==", nil), http.StatusBadRequest, "failed to decode b64 token"},
		{"unknown note", httptest.NewRequest(http.MethodGet, "/note/42?token="+url.QueryEscape(tok), nil), http.StatusNotFound, "failed to find record with that id"},
		{"unknown key", httptest.NewRequest(http.MethodGet, "/keys/42", nil), http.StatusNotFound, "failed to find record with that id"},
		{"non numeric id", httptest.NewRequest(http.MethodGet, "/keys/abc", nil), http.StatusBadRequest, ""},
		{"bad json", httptest.NewRequest(http.MethodPost, "/add_note", strings.NewReader("{")), http.StatusBadRequest, ""},
		{"note too long", httptest.NewRequest(http.MethodPost, "/add_note", addNoteRequestBody(t, strings.Repeat("x", 500), tok)), http.StatusUnprocessableEntity, "failed to encrypt note"},
		{"wrong method", httptest.NewRequest(http.MethodPost, "/get_token", nil), http.StatusMethodNotAllowed, ""},
		{"preflight", httptest.NewRequest(http.MethodOptions, "/add_note", nil), http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(server, tt.req)
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("expected body %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

type failingNotes struct {
	err error
}

func (f failingNotes) IssueToken(context.Context) (notes.Issued, error) {
	return notes.Issued{}, f.err
}

func (f failingNotes) AddNote(context.Context, string, string) (int64, error) {
	return 0, f.err
}

func (f failingNotes) GetNote(context.Context, int64, string) (string, error) {
	return "", f.err
}

func (f failingNotes) GetKey(context.Context, int64) (notes.KeyView, error) {
	return notes.KeyView{}, f.err
}

func TestServiceFailures(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: after 3 attempts", nerrors.ErrKeyGenerationTimeout), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: generate p", nerrors.ErrKeyGeneration), http.StatusInternalServerError},
		{fmt.Errorf("%w: insert", nerrors.ErrStore), http.StatusInternalServerError},
		{notes.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		server := New(failingNotes{err: tt.err}, WithLogger(testLogger()))
		rec := do(server, httptest.NewRequest(http.MethodGet, "/get_token", nil))
		if rec.Code != tt.status {
			t.Fatalf("%v: expected status %d, got %d", tt.err, tt.status, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "after 3 attempts") {
			t.Fatalf("internal detail leaked: %q", rec.Body.String())
		}
	}
}

func TestStatusForDecryptErrors(t *testing.T) {
	for _, err := range []error{
		nerrors.ErrKeyReconstruction,
		nerrors.ErrDecryption,
		nerrors.ErrTextDecoding,
	} {
		status, msg := statusFor(fmt.Errorf("wrapped: %w", err))
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("%v: expected %d, got %d", err, http.StatusUnprocessableEntity, status)
		}
		if msg != err.Error() {
			t.Fatalf("expected message %q, got %q", err.Error(), msg)
		}
	}
}

type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestWriteFailureUsesServerLogger(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	server := New(failingNotes{}, WithLogger(logger))

	server.ServeHTTP(brokenWriter{httptest.NewRecorder()}, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, entry := range hook.AllEntries() {
		if entry.Message == "failed to write response" {
			if entry.Level != logrus.DebugLevel {
				t.Fatalf("expected debug level, got %s", entry.Level)
			}
			return
		}
	}
	t.Fatalf("write failure not logged through the server logger, got %d entries", len(hook.AllEntries()))
}
