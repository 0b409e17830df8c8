// Package queue drains the hub's outbound message queue: peek one message,
// persist it, dequeue it by reference, repeat until the queue is empty.
package queue

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gridforge-lab/gridforge/internal/document"
)

var (
	docRefPattern  = regexp.MustCompile(`DocumentReferenceNumber>(.*?)</`)
	processPattern = regexp.MustCompile(`EnergyBusinessProcess>(.*?)</`)
	statusPattern  = regexp.MustCompile(`BA01|BA02`)
)

// Stats counts drained messages by acknowledgement status.
type Stats struct {
	Total    int
	Accepted int // BA01
	Rejected int // BA02
	Other    int
}

// Drainer polls the queue endpoint and archives every peeked message.
type Drainer struct {
	client  *http.Client
	builder *document.Builder
	pollURL string
	peekDir string
}

func NewDrainer(client *http.Client, builder *document.Builder, pollURL, peekDir string) *Drainer {
	return &Drainer{client: client, builder: builder, pollURL: pollURL, peekDir: peekDir}
}

// Drain empties the queue. Each peeked message is written under peekDir as
// <status>_<process>_<docref>.xml before it is dequeued, so nothing the hub
// queued is lost.
func (d *Drainer) Drain(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := os.MkdirAll(d.peekDir, 0o755); err != nil {
		return stats, fmt.Errorf("failed to create peek directory: %w", err)
	}

	peekReq, err := d.builder.PeekRequest()
	if err != nil {
		return stats, fmt.Errorf("failed to render peek request: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		body, err := d.post(ctx, peekReq)
		if err != nil {
			return stats, fmt.Errorf("peek failed: %w", err)
		}

		docRef, ok := matchOne(docRefPattern, body)
		if !ok {
			slog.Info("[Queue] Queue empty",
				"total", stats.Total, "accepted", stats.Accepted,
				"rejected", stats.Rejected, "other", stats.Other)
			return stats, nil
		}

		status := "NONE"
		if m := statusPattern.Find(body); m != nil {
			status = string(m)
		}
		process, _ := matchOne(processPattern, body)
		if process == "" {
			process = "unknown"
		}

		stats.Total++
		switch status {
		case "BA01":
			stats.Accepted++
		case "BA02":
			stats.Rejected++
		default:
			stats.Other++
		}

		name := fmt.Sprintf("%s_%s_%s.xml", status, process, docRef)
		if err := os.WriteFile(filepath.Join(d.peekDir, name), body, 0o644); err != nil {
			return stats, fmt.Errorf("failed to archive peek %s: %w", docRef, err)
		}

		dequeueReq, err := d.builder.DequeueRequest(docRef)
		if err != nil {
			return stats, fmt.Errorf("failed to render dequeue request: %w", err)
		}
		if _, err := d.post(ctx, dequeueReq); err != nil {
			return stats, fmt.Errorf("dequeue of %s failed: %w", docRef, err)
		}
		slog.Debug("[Queue] Message dequeued", "doc_ref", docRef, "status", status)
	}
}

func (d *Drainer) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.pollURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return body.Bytes(), nil
}

func matchOne(re *regexp.Regexp, body []byte) (string, bool) {
	m := re.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}
