package httpd

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

type header struct {
	name  string
	value string
}

// Response is built by a content handler and written once by the server.
type Response struct {
	Status  int
	headers []header
	Body    []byte
}

// NewResponse creates a response with the given status code.
func NewResponse(status int) *Response {
	return &Response{Status: status}
}

// AddHeader appends a header, replacing an earlier one of the same name.
func (r *Response) AddHeader(name, value string) {
	for i := range r.headers {
		if r.headers[i].name == name {
			r.headers[i].value = value
			return
		}
	}
	r.headers = append(r.headers, header{name, value})
}

// Header returns the value of a header set with AddHeader.
func (r *Response) Header(name string) string {
	for _, h := range r.headers {
		if h.name == name {
			return h.value
		}
	}
	return ""
}

// SetMimeType sets Content-Type.
func (r *Response) SetMimeType(mime string) {
	r.AddHeader("Content-Type", mime)
}

// AddContent appends to the body.
func (r *Response) AddContent(b []byte) {
	r.Body = append(r.Body, b...)
}

// textResponse is a plain-text response with the status text as body.
func textResponse(status int) *Response {
	resp := NewResponse(status)
	resp.SetMimeType("text/plain")
	resp.AddContent([]byte(http.StatusText(status) + "\n"))
	return resp
}

// writeTo serializes the response. Simple (HTTP/0.9) requests get the body
// only; HEAD requests get the headers only. The connection is always closed
// afterwards, which the headers announce.
func (r *Response) writeTo(w io.Writer, req *Request, server string) error {
	bw := bufio.NewWriter(w)

	if req != nil && req.Simple() {
		bw.Write(r.Body)
		return bw.Flush()
	}

	version := Version10
	if req != nil && req.Version == Version11 {
		version = Version11
	}
	fmt.Fprintf(bw, "%s %d %s\r\n", version, r.Status, http.StatusText(r.Status))
	if server != "" {
		fmt.Fprintf(bw, "Server: %s\r\n", server)
	}
	for _, h := range r.headers {
		fmt.Fprintf(bw, "%s: %s\r\n", h.name, h.value)
	}
	bw.WriteString("Content-Length: " + strconv.Itoa(len(r.Body)) + "\r\n")
	bw.WriteString("Connection: close\r\n\r\n")

	if req == nil || req.Method != MethodHead {
		bw.Write(r.Body)
	}
	return bw.Flush()
}
