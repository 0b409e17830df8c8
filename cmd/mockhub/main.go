// mockhub simulates the counterparty: it acknowledges posted documents
// according to its mode and serves the peek/dequeue queue protocol over
// the acknowledgements it produced.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/gridforge-lab/gridforge/internal/server"
)

type mode string

const (
	modeOK          mode = "ok"
	modeReject      mode = "reject"
	modeUnavailable mode = "unavailable"
)

var processPattern = regexp.MustCompile(`EnergyBusinessProcess[^>]*>(.*?)</`)

// hub holds the simulator state: every acknowledged document queues a
// matching acknowledgement message for the drain protocol.
type hub struct {
	mode       mode
	rejectCode string

	mu      sync.Mutex
	nextRef int
	backlog []queuedAck
}

type queuedAck struct {
	docRef  string
	process string
	status  string
}

func main() {
	addr := flag.String("addr", ":8443", "Listen address")
	modeFlag := flag.String("mode", "ok", "Response mode: ok, reject or unavailable")
	code := flag.String("code", "DH-100", "Rejection code used in reject mode")
	ginMode := flag.String("gin-mode", "release", "Gin mode: debug or release")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	switch mode(*modeFlag) {
	case modeOK, modeReject, modeUnavailable:
	default:
		slog.Error("Invalid mode", "mode", *modeFlag)
		os.Exit(1)
	}

	h := &hub{mode: mode(*modeFlag), rejectCode: *code}

	srv := server.New(*addr, *ginMode)
	srv.Engine.POST("/queue", h.handleQueue)
	srv.Engine.POST("/:org", h.handleDocument)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	slog.Info("Hub simulator ready", "mode", h.mode, "addr", *addr)
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

// handleDocument acknowledges one posted document per the configured mode.
func (h *hub) handleDocument(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable body")
		return
	}

	process := "unknown"
	if m := processPattern.FindSubmatch(body); m != nil {
		process = string(m[1])
	}

	switch h.mode {
	case modeUnavailable:
		c.Header("Content-Type", "text/xml")
		c.String(http.StatusServiceUnavailable,
			`<Fault xmlns="urn:cms:b2b:v01">Service Unavailable</Fault>`)

	case modeReject:
		docRef := h.enqueue(process, "BA02")
		c.Header("Content-Type", "text/xml")
		c.String(http.StatusOK, fmt.Sprintf(
			`<Acknowledgement xmlns="urn:cms:b2b:v01"><DocumentReferenceNumber>%s</DocumentReferenceNumber><urn:ErrorCode>%s</urn:ErrorCode></Acknowledgement>`,
			docRef, h.rejectCode))

	default:
		docRef := h.enqueue(process, "BA01")
		c.Header("Content-Type", "text/xml")
		c.String(http.StatusOK, fmt.Sprintf(
			`<Acknowledgement xmlns="urn:cms:b2b:v01"><DocumentReferenceNumber>%s</DocumentReferenceNumber><StatusCode>BA01</StatusCode></Acknowledgement>`,
			docRef))
	}

	slog.Info("Document handled", "org", c.Param("org"), "process", process, "mode", h.mode)
}

// handleQueue serves the peek and dequeue halves of the drain protocol.
func (h *hub) handleQueue(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable body")
		return
	}
	payload := string(body)
	c.Header("Content-Type", "text/xml")

	switch {
	case strings.Contains(payload, "PeekMessageRequest"):
		h.mu.Lock()
		defer h.mu.Unlock()
		if len(h.backlog) == 0 {
			c.String(http.StatusOK, `<PeekMessageResponse xmlns="urn:cms:b2b:v01"><QueueEmpty/></PeekMessageResponse>`)
			return
		}
		ack := h.backlog[0]
		c.String(http.StatusOK, fmt.Sprintf(
			`<PeekMessageResponse xmlns="urn:cms:b2b:v01"><DocumentReferenceNumber>%s</DocumentReferenceNumber><urn3:EnergyBusinessProcess>%s</urn3:EnergyBusinessProcess><StatusCode>%s</StatusCode></PeekMessageResponse>`,
			ack.docRef, ack.process, ack.status))

	case strings.Contains(payload, "DequeueMessageRequest"):
		h.mu.Lock()
		defer h.mu.Unlock()
		if len(h.backlog) > 0 && strings.Contains(payload, h.backlog[0].docRef) {
			h.backlog = h.backlog[1:]
		}
		c.String(http.StatusOK, `<DequeueMessageResponse xmlns="urn:cms:b2b:v01"/>`)

	default:
		c.String(http.StatusBadRequest, "unknown queue request")
	}
}

func (h *hub) enqueue(process, status string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextRef++
	docRef := fmt.Sprintf("DOC-%06d", h.nextRef)
	h.backlog = append(h.backlog, queuedAck{docRef: docRef, process: process, status: status})
	return docRef
}
