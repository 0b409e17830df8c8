package queue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridforge-lab/gridforge/internal/document"
)

type queuedMessage struct {
	docRef  string
	process string
	status  string
}

// fakeHub serves peeks from a fixed backlog and removes entries on dequeue.
type fakeHub struct {
	t       *testing.T
	backlog []queuedMessage
}

func (h *fakeHub) handler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(h.t, err)
	payload := string(body)

	switch {
	case strings.Contains(payload, "PeekMessageRequest"):
		if len(h.backlog) == 0 {
			w.Write([]byte(`<PeekMessageResponse xmlns="urn:cms:b2b:v01"><QueueEmpty/></PeekMessageResponse>`))
			return
		}
		msg := h.backlog[0]
		fmt.Fprintf(w, `<PeekMessageResponse xmlns="urn:cms:b2b:v01">
  <DocumentReferenceNumber>%s</DocumentReferenceNumber>
  <Payload>
    <urn3:EnergyBusinessProcess>%s</urn3:EnergyBusinessProcess>
    <urn:StatusCode>%s</urn:StatusCode>
  </Payload>
</PeekMessageResponse>`, msg.docRef, msg.process, msg.status)

	case strings.Contains(payload, "DequeueMessageRequest"):
		require.NotEmpty(h.t, h.backlog, "dequeue with empty backlog")
		require.Contains(h.t, payload, h.backlog[0].docRef)
		h.backlog = h.backlog[1:]
		w.Write([]byte(`<DequeueMessageResponse xmlns="urn:cms:b2b:v01"/>`))

	default:
		h.t.Fatalf("unexpected request payload: %s", payload)
	}
}

func newTestDrainer(t *testing.T, hub *fakeHub) (*Drainer, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.handler))
	t.Cleanup(server.Close)

	builder, err := document.NewBuilder()
	require.NoError(t, err)

	peekDir := t.TempDir()
	return NewDrainer(server.Client(), builder, server.URL, peekDir), peekDir
}

func TestDrainer_Drain(t *testing.T) {
	hub := &fakeHub{t: t, backlog: []queuedMessage{
		{docRef: "DOC-1", process: "DH-111-1", status: "BA01"},
		{docRef: "DOC-2", process: "DH-311-1", status: "BA02"},
		{docRef: "DOC-3", process: "DH-121-1", status: "BA01"},
	}}
	drainer, peekDir := newTestDrainer(t, hub)

	stats, err := drainer.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 3, Accepted: 2, Rejected: 1}, stats)
	require.Empty(t, hub.backlog)

	require.FileExists(t, filepath.Join(peekDir, "BA01_DH-111-1_DOC-1.xml"))
	require.FileExists(t, filepath.Join(peekDir, "BA02_DH-311-1_DOC-2.xml"))
	require.FileExists(t, filepath.Join(peekDir, "BA01_DH-121-1_DOC-3.xml"))

	content, err := os.ReadFile(filepath.Join(peekDir, "BA02_DH-311-1_DOC-2.xml"))
	require.NoError(t, err)
	require.Contains(t, string(content), "DOC-2")
}

func TestDrainer_Drain_StatusMissing(t *testing.T) {
	hub := &fakeHub{t: t, backlog: []queuedMessage{
		{docRef: "DOC-9", process: "DH-111-1", status: "BA09"},
	}}
	drainer, peekDir := newTestDrainer(t, hub)

	stats, err := drainer.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 1, Other: 1}, stats)
	require.FileExists(t, filepath.Join(peekDir, "NONE_DH-111-1_DOC-9.xml"))
}

func TestDrainer_Drain_EmptyQueue(t *testing.T) {
	drainer, _ := newTestDrainer(t, &fakeHub{t: t})
	stats, err := drainer.Drain(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Total)
}

func TestDrainer_Drain_ContextCancelled(t *testing.T) {
	hub := &fakeHub{t: t, backlog: []queuedMessage{
		{docRef: "DOC-1", process: "DH-111-1", status: "BA01"},
	}}
	drainer, _ := newTestDrainer(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := drainer.Drain(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
