// Package delivery posts assembled documents to the hub over mutual TLS,
// classifies acknowledgements and manages the sent-file lifecycle.
package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Role selects which endpoint table a document is routed through.
type Role string

const (
	RoleDSO Role = "DSO"
	RoleDDQ Role = "DDQ"
)

var (
	// ErrRouting means the sender organization could not be resolved to an
	// endpoint.
	ErrRouting = errors.New("no route for sender organization")

	// ErrUnavailable means the hub backend reported itself unavailable.
	// Callers treat this as fatal for the whole run, not just one file.
	ErrUnavailable = errors.New("hub backend unavailable")
)

// Outcome classifies one delivery attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRejected
	OutcomeUnavailable
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeTransportError:
		return "transport-error"
	default:
		return "unknown"
	}
}

// Result is the classified outcome of sending one document.
type Result struct {
	Outcome Outcome
	Code    string // rejection code, when present
	Reason  string // human-readable failure reason
}

var (
	// First party identification in the document is the physical sender,
	// which keys the endpoint tables.
	routingKeyPattern = regexp.MustCompile(`schemeAgencyIdentifier="9">(\d+)<`)

	errorCodePattern = regexp.MustCompile(`ErrorCode>(.*?)</`)
)

const (
	successMarker     = "BA01"
	unavailableMarker = "Unavailable"
)

// Router resolves documents to hub endpoint URLs from per-organization
// tables.
type Router struct {
	baseURL string
	dso     map[string]string
	ddq     map[string]string
}

func NewRouter(baseURL string, dso, ddq map[string]string) *Router {
	return &Router{baseURL: baseURL, dso: dso, ddq: ddq}
}

// RoutingKey extracts the sending organization id from a document.
func RoutingKey(doc []byte) (string, error) {
	m := routingKeyPattern.FindSubmatch(doc)
	if m == nil {
		return "", fmt.Errorf("%w: no party identification in document", ErrRouting)
	}
	return string(m[1]), nil
}

// URLFor resolves the full endpoint URL for a document sent in the given
// role.
func (r *Router) URLFor(role Role, doc []byte) (string, error) {
	org, err := RoutingKey(doc)
	if err != nil {
		return "", err
	}
	table := r.dso
	if role == RoleDDQ {
		table = r.ddq
	}
	suffix, ok := table[org]
	if !ok {
		return "", fmt.Errorf("%w: organization %s has no %s endpoint", ErrRouting, org, role)
	}
	return r.baseURL + suffix, nil
}

// Sender delivers documents and maintains the response log directory.
// Sent source files are renamed with a DONE_ prefix so a re-run skips them.
type Sender struct {
	router *Router
	client *http.Client
	logDir string
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithHTTPClient replaces the mutual-TLS client. Used by tests.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *Sender) { s.client = client }
}

// NewSender builds a Sender with a mutual-TLS client from the given client
// certificate pair.
func NewSender(router *Router, certFile, keyFile, logDir string, opts ...SenderOption) (*Sender, error) {
	s := &Sender{router: router, logDir: logDir}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		s.client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
			},
		}
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create response log directory: %w", err)
	}
	return s, nil
}

// SendFile posts one document file and classifies the acknowledgement.
//
// The raw response is always written to <logDir>/resp_<name>; on any
// failure that log is renamed to FAIL_resp_<name>. On success the source
// document is renamed with a DONE_ prefix. An unavailable hub additionally
// returns ErrUnavailable so callers can abort the whole run.
func (s *Sender) SendFile(ctx context.Context, role Role, path string) (Result, error) {
	name := filepath.Base(path)

	doc, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	url, err := s.router.URLFor(role, doc)
	if err != nil {
		return Result{}, err
	}

	slog.Debug("[Delivery] Sending document", "file", name, "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(doc))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request for %s: %w", name, err)
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		s.writeFailLog(name, []byte(fmt.Sprintf("request failed: %v\nurl: %s\n", err, url)))
		slog.Warn("[Delivery] Request failed", "file", name, "error", err)
		return Result{Outcome: OutcomeTransportError, Reason: err.Error()}, nil
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		s.writeFailLog(name, []byte(fmt.Sprintf("reading response failed: %v\n", err)))
		return Result{Outcome: OutcomeTransportError, Reason: err.Error()}, nil
	}
	content := body.Bytes()

	logPath := filepath.Join(s.logDir, "resp_"+name)
	if err := os.WriteFile(logPath, content, 0o644); err != nil {
		slog.Warn("[Delivery] Failed to write response log", "file", name, "error", err)
	}

	result := classify(content)
	switch result.Outcome {
	case OutcomeSuccess:
		done := filepath.Join(filepath.Dir(path), "DONE_"+name)
		if err := os.Rename(path, done); err != nil {
			slog.Warn("[Delivery] Failed to mark document done", "file", name, "error", err)
		}
		slog.Info("[Delivery] Document accepted", "file", name)
		return result, nil

	case OutcomeUnavailable:
		s.failLog(logPath, name)
		slog.Error("[Delivery] Hub backend unavailable", "file", name)
		return result, ErrUnavailable

	default:
		s.failLog(logPath, name)
		slog.Warn("[Delivery] Document rejected",
			"file", name, "code", result.Code, "reason", result.Reason)
		return result, nil
	}
}

func classify(content []byte) Result {
	// An unavailable backend can echo an otherwise well-formed envelope, so
	// it is checked before the success marker.
	if bytes.Contains(content, []byte(unavailableMarker)) {
		return Result{Outcome: OutcomeUnavailable, Reason: "hub backend unavailable"}
	}
	if bytes.Contains(content, []byte(successMarker)) {
		return Result{Outcome: OutcomeSuccess}
	}
	if m := errorCodePattern.FindSubmatch(content); m != nil {
		code := string(m[1])
		return Result{Outcome: OutcomeRejected, Code: code, Reason: ReasonForCode(code)}
	}
	return Result{Outcome: OutcomeRejected, Reason: "no acknowledgement marker in response"}
}

func (s *Sender) failLog(logPath, name string) {
	failPath := filepath.Join(s.logDir, "FAIL_resp_"+name)
	if err := os.Rename(logPath, failPath); err != nil {
		slog.Warn("[Delivery] Failed to move response log", "file", name, "error", err)
	}
}

func (s *Sender) writeFailLog(name string, content []byte) {
	failPath := filepath.Join(s.logDir, "FAIL_resp_"+name)
	if err := os.WriteFile(failPath, content, 0o644); err != nil {
		slog.Warn("[Delivery] Failed to write failure log", "file", name, "error", err)
	}
}
