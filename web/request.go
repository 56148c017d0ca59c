package web

import (
	"net/http"
	"sort"
	"strings"
)

// Request is the read side of a routing context.
type Request struct {
	ctx *RoutingContext
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.ctx.req.Method }

// Path returns the request path.
func (r *Request) Path() string { return r.ctx.req.URL.Path }

// URI returns the request URI.
func (r *Request) URI() string { return r.ctx.req.URL.RequestURI() }

// Query returns the raw query string.
func (r *Request) Query() string { return r.ctx.req.URL.RawQuery }

// GetHeader returns a request header.
func (r *Request) GetHeader(name string) string { return r.ctx.req.Header.Get(name) }

// GetParam returns a query parameter, falling back to path parameters.
func (r *Request) GetParam(name string) string {
	if v := r.ctx.req.URL.Query().Get(name); v != "" {
		return v
	}
	return r.ctx.Param(name)
}

// Headers returns the first value of every request header.
func (r *Request) Headers() map[string]string {
	out := make(map[string]string, len(r.ctx.req.Header))
	for k, v := range r.ctx.req.Header {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// RemoteAddress returns the client address.
func (r *Request) RemoteAddress() string { return r.ctx.req.RemoteAddr }

// Response is the write side of a routing context. Headers and cookies are
// flushed on the first write.
type Response struct {
	ctx     *RoutingContext
	status  int
	written bool
	ended   bool
}

// SetStatusCode sets the status sent with the headers.
func (r *Response) SetStatusCode(code int) *Response {
	r.status = code
	return r
}

// GetStatusCode returns the status code.
func (r *Response) GetStatusCode() int {
	return r.status
}

// PutHeader sets a response header.
func (r *Response) PutHeader(name, value string) *Response {
	r.ctx.writer.Header().Set(name, value)
	return r
}

// Headers returns the response headers, sorted by name.
func (r *Response) Headers() []string {
	var out []string
	for k, v := range r.ctx.writer.Header() {
		out = append(out, k+": "+strings.Join(v, ", "))
	}
	sort.Strings(out)
	return out
}

func (r *Response) writeHeader() {
	if r.written {
		return
	}
	r.written = true
	for _, c := range r.ctx.changedCookies() {
		http.SetCookie(r.ctx.writer, c.httpCookie())
	}
	r.ctx.writer.WriteHeader(r.status)
}

// Write sends a chunk of the body.
func (r *Response) Write(chunk string) *Response {
	if r.ended {
		return r
	}
	r.writeHeader()
	_, _ = r.ctx.writer.Write([]byte(chunk))
	return r
}

// WriteBytes sends a binary chunk of the body.
func (r *Response) WriteBytes(chunk []byte) *Response {
	if r.ended {
		return r
	}
	r.writeHeader()
	_, _ = r.ctx.writer.Write(chunk)
	return r
}

// End finishes the response.
func (r *Response) End() {
	if r.ended {
		return
	}
	r.writeHeader()
	r.ended = true
}

// EndWith writes a final chunk and finishes the response.
func (r *Response) EndWith(chunk string) {
	r.Write(chunk)
	r.End()
}

// Ended reports whether the response is finished.
func (r *Response) Ended() bool {
	return r.ended
}

// HeadWritten reports whether the status line has been sent.
func (r *Response) HeadWritten() bool {
	return r.written
}
