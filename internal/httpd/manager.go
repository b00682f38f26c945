package httpd

import "net/http"

// ContentHandler claims a request by returning a response and true. Handlers
// that do not serve the request return false and the next one is asked.
type ContentHandler interface {
	Handle(req *Request) (*Response, bool)
}

// ContentHandlerFunc adapts a function to ContentHandler.
type ContentHandlerFunc func(req *Request) (*Response, bool)

func (f ContentHandlerFunc) Handle(req *Request) (*Response, bool) {
	return f(req)
}

type namedHandler struct {
	name    string
	handler ContentHandler
}

// ContentManager asks its handlers in registration order; the first claim
// wins. Handlers must be added before the server starts.
type ContentManager struct {
	handlers []namedHandler
}

// NewContentManager creates an empty chain.
func NewContentManager() *ContentManager {
	return &ContentManager{}
}

// AddContentHandler appends h under name, which is used in logs and metrics.
func (m *ContentManager) AddContentHandler(name string, h ContentHandler) {
	m.handlers = append(m.handlers, namedHandler{name: name, handler: h})
}

// Names lists the handlers in chain order.
func (m *ContentManager) Names() []string {
	names := make([]string, len(m.handlers))
	for i, h := range m.handlers {
		names[i] = h.name
	}
	return names
}

// HandleRequest runs the chain. Without a claim the result is a 404 response
// attributed to "notfound".
func (m *ContentManager) HandleRequest(req *Request) (*Response, string) {
	for _, h := range m.handlers {
		if resp, ok := h.handler.Handle(req); ok && resp != nil {
			return resp, h.name
		}
	}
	return textResponse(http.StatusNotFound), "notfound"
}
