package httpd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fmradiod/internal/control"
	"github.com/fmradiod/internal/device"
	"github.com/fmradiod/internal/radio"
	"github.com/fmradiod/internal/status"
)

// StaticFile maps one exact URI to a file on disk.
type StaticFile struct {
	URI      string
	Path     string
	MimeType string // derived from the extension when empty
}

// StaticFileHandler serves a fixed set of files. The file is read on every
// request; a missing file declines the request so later handlers can claim it.
type StaticFileHandler struct {
	files map[string]StaticFile
}

// NewStaticFileHandler creates a handler for files.
func NewStaticFileHandler(files []StaticFile) *StaticFileHandler {
	h := &StaticFileHandler{files: make(map[string]StaticFile, len(files))}
	for _, f := range files {
		if f.MimeType == "" {
			f.MimeType = mime.TypeByExtension(filepath.Ext(f.Path))
		}
		if f.MimeType == "" {
			f.MimeType = "application/octet-stream"
		}
		h.files[f.URI] = f
	}
	return h
}

// Handle serves the file mapped to the request path.
func (h *StaticFileHandler) Handle(req *Request) (*Response, bool) {
	f, ok := h.files[req.Path]
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("Static: failed to read %s: %v", f.Path, err)
		}
		return nil, false
	}

	resp := NewResponse(http.StatusOK)
	resp.SetMimeType(f.MimeType)
	resp.AddContent(data)
	return resp, true
}

// CrossDomainPath is where Flash-era clients look for the policy file.
const CrossDomainPath = "/crossdomain.xml"

// CrossDomainHandler serves the cross-domain policy document.
type CrossDomainHandler struct {
	body []byte
}

// NewCrossDomainHandler creates the policy for domains; none means "*".
func NewCrossDomainHandler(domains []string) *CrossDomainHandler {
	if len(domains) == 0 {
		domains = []string{"*"}
	}
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n")
	b.WriteString("<!DOCTYPE cross-domain-policy SYSTEM \"http://www.macromedia.com/xml/dtds/cross-domain-policy.dtd\">\n")
	b.WriteString("<cross-domain-policy>\n")
	for _, d := range domains {
		fmt.Fprintf(&b, "<allow-access-from domain=\"%s\" />\n", status.Escape(d))
	}
	b.WriteString("</cross-domain-policy>\n")
	return &CrossDomainHandler{body: []byte(b.String())}
}

// Handle serves the policy.
func (h *CrossDomainHandler) Handle(req *Request) (*Response, bool) {
	if req.Path != CrossDomainPath {
		return nil, false
	}
	resp := NewResponse(http.StatusOK)
	resp.SetMimeType("text/x-cross-domain-policy")
	resp.AddContent(h.body)
	return resp, true
}

// DefaultControlPath is the radio handler's default URI.
const DefaultControlPath = "/radio"

// StatusSource yields the current radio snapshot.
type StatusSource interface {
	Status(ctx context.Context) (radio.Status, error)
}

// RadioHandler applies control parameters and answers with the status
// document.
type RadioHandler struct {
	path     string
	radio    StatusSource
	actions  *control.ActionRegistry
	renderer *status.Renderer
}

// NewRadioHandler creates the control handler at path.
func NewRadioHandler(path string, rad StatusSource, actions *control.ActionRegistry, renderer *status.Renderer) *RadioHandler {
	if path == "" {
		path = DefaultControlPath
	}
	return &RadioHandler{path: path, radio: rad, actions: actions, renderer: renderer}
}

// Handle applies every present parameter in registry order. Processing
// stops at the first failure, which decides the response code; the status
// document is rendered either way.
func (h *RadioHandler) Handle(req *Request) (*Response, bool) {
	if req.Path != h.path {
		return nil, false
	}
	ctx := req.Context()

	code := http.StatusOK
	form, actionErr := req.Form()
	if actionErr != nil {
		actionErr = fmt.Errorf("%w: %v", device.ErrInvalidParameter, actionErr)
	} else {
		actionErr = h.actions.ApplyForm(ctx, form)
	}
	if actionErr != nil {
		code = statusCode(actionErr)
	}

	st, err := h.radio.Status(ctx)
	if err != nil {
		log.Printf("Radio: status unavailable: %v", err)
		return NewResponse(http.StatusInternalServerError), true
	}
	doc, err := h.renderer.Render(st, device.Code(actionErr))
	if err != nil {
		log.Printf("Radio: failed to render status: %v", err)
		return NewResponse(http.StatusInternalServerError), true
	}

	resp := NewResponse(code)
	resp.SetMimeType("text/xml; charset=UTF-8")
	resp.AddHeader("Cache-Control", "no-cache")
	resp.AddContent(doc)
	return resp, true
}

// statusCode maps a normalized error to its HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, device.ErrOutOfRange), errors.Is(err, device.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, device.ErrDeviceFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
