package httpd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// Supported request methods.
const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
	MethodPost = "POST"
)

// Protocol versions. A request line without a version is an HTTP/0.9 simple
// request: no headers are read and the response carries no status line.
const (
	Version09 = "HTTP/0.9"
	Version10 = "HTTP/1.0"
	Version11 = "HTTP/1.1"
)

// Parse errors. The server answers ErrMalformed with 400 and
// ErrNotImplemented with 501.
var (
	ErrMalformed      = errors.New("malformed request")
	ErrNotImplemented = errors.New("method not implemented")
)

// Request is one parsed request.
type Request struct {
	Method  string
	URI     string
	Path    string
	Query   url.Values
	Version string
	Header  textproto.MIMEHeader
	Body    []byte

	RemoteAddr string
	ConnID     string

	ctx context.Context
}

// Context is cancelled when the server shuts down.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Simple reports whether this is an HTTP/0.9 simple request.
func (r *Request) Simple() bool {
	return r.Version == Version09
}

// Form merges the query string with an urlencoded POST body. Body values
// follow query values of the same name.
func (r *Request) Form() (url.Values, error) {
	form := url.Values{}
	for k, v := range r.Query {
		form[k] = append(form[k], v...)
	}
	if r.Method != MethodPost || len(r.Body) == 0 {
		return form, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		return form, nil
	}
	body, err := url.ParseQuery(string(r.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: form body: %v", ErrMalformed, err)
	}
	for k, v := range body {
		form[k] = append(form[k], v...)
	}
	return form, nil
}

// ReadRequest parses one request from br. Bodies longer than maxBody are
// rejected.
func ReadRequest(br *bufio.Reader, maxBody int) (*Request, error) {
	line, err := readRequestLine(br)
	if err != nil {
		return nil, err
	}

	req, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}
	if req.Simple() {
		req.Header = textproto.MIMEHeader{}
		return req, nil
	}

	req.Header, err = textproto.NewReader(br).ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: headers: %w", ErrMalformed, err)
	}

	if cl := req.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: content length %q", ErrMalformed, cl)
		}
		if n > maxBody {
			return nil, fmt.Errorf("%w: body of %d bytes exceeds %d", ErrMalformed, n, maxBody)
		}
		req.Body = make([]byte, n)
		if _, err := io.ReadFull(br, req.Body); err != nil {
			return nil, fmt.Errorf("%w: body: %w", ErrMalformed, err)
		}
	}
	return req, nil
}

// readRequestLine returns the request line without its terminator. A line
// cut off by EOF or a read deadline is an error wrapping the read error, so
// callers can tell a vanished client from a bad request.
func readRequestLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if line == "" && errors.Is(err, io.EOF) {
			return "", err
		}
		return "", fmt.Errorf("%w: truncated request line %q: %w", ErrMalformed, line, err)
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

func parseRequestLine(line string) (*Request, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return nil, fmt.Errorf("%w: request line %q", ErrMalformed, line)
	}

	req := &Request{Method: fields[0], URI: fields[1], Version: Version09}
	if len(fields) == 3 {
		switch fields[2] {
		case Version09, Version10, Version11:
			req.Version = fields[2]
		default:
			return nil, fmt.Errorf("%w: version %q", ErrMalformed, fields[2])
		}
	}
	if req.Simple() && req.Method != MethodGet {
		// Only GET exists in HTTP/0.9.
		return nil, fmt.Errorf("%w: simple request with %s", ErrMalformed, req.Method)
	}

	switch req.Method {
	case MethodGet, MethodHead, MethodPost:
	default:
		return req, fmt.Errorf("%w: %s", ErrNotImplemented, req.Method)
	}

	u, err := url.ParseRequestURI(req.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: uri %q", ErrMalformed, req.URI)
	}
	req.Path = u.Path
	req.Query, err = url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrMalformed, err)
	}
	return req, nil
}
