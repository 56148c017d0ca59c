package web

import "net/http"

// Cookie is a request or response cookie. NewCookie always creates a fresh
// instance; setters mark it changed so it is sent with the response.
type Cookie struct {
	name     string
	value    string
	domain   string
	path     string
	maxAge   int64
	secure   bool
	httpOnly bool
	changed  bool
}

// NewCookie creates a cookie.
func NewCookie(name, value string) *Cookie {
	return &Cookie{name: name, value: value, maxAge: -1}
}

func (c *Cookie) GetName() string   { return c.name }
func (c *Cookie) GetValue() string  { return c.value }
func (c *Cookie) GetDomain() string { return c.domain }
func (c *Cookie) GetPath() string   { return c.path }
func (c *Cookie) IsChanged() bool   { return c.changed }

func (c *Cookie) SetValue(v string) *Cookie {
	c.value = v
	c.changed = true
	return c
}

func (c *Cookie) SetDomain(d string) *Cookie {
	c.domain = d
	c.changed = true
	return c
}

func (c *Cookie) SetPath(p string) *Cookie {
	c.path = p
	c.changed = true
	return c
}

// SetMaxAge sets the lifetime in seconds; negative means a session cookie.
func (c *Cookie) SetMaxAge(seconds int64) *Cookie {
	c.maxAge = seconds
	c.changed = true
	return c
}

func (c *Cookie) SetSecure(v bool) *Cookie {
	c.secure = v
	c.changed = true
	return c
}

func (c *Cookie) SetHttpOnly(v bool) *Cookie {
	c.httpOnly = v
	c.changed = true
	return c
}

func (c *Cookie) SetChanged(v bool) *Cookie {
	c.changed = v
	return c
}

// Encode renders the Set-Cookie header value.
func (c *Cookie) Encode() string {
	return c.httpCookie().String()
}

func (c *Cookie) httpCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.name,
		Value:    c.value,
		Domain:   c.domain,
		Path:     c.path,
		Secure:   c.secure,
		HttpOnly: c.httpOnly,
	}
	switch {
	case c.maxAge > 0:
		hc.MaxAge = int(c.maxAge)
	case c.maxAge == 0:
		hc.MaxAge = -1 // expire now
	}
	return hc
}
