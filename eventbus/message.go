package eventbus

import (
	"maps"
	"sync"
	"sync/atomic"

	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/eventbus/codec"
)

// Failure tags carried by request errors.
const (
	FailureNoHandlers = "NO_HANDLERS"
	FailureTimeout    = "TIMEOUT"
	FailureRecipient  = "RECIPIENT_FAILURE"
)

// DeliveryOptions tune one send.
type DeliveryOptions struct {
	Headers     map[string]string `json:"headers,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	TimeoutMs   int64             `json:"timeout,omitempty"`
}

// Message is one delivered message.
type Message struct {
	bus         *Bus
	headers     map[string]string
	reply       func(*Message, error)
	address     string
	contentType string
	body        []byte
	ends        []func()
	mu          sync.Mutex
	replied     atomic.Bool
	send        bool
	finished    bool
}

// Address returns the destination address.
func (m *Message) Address() string { return m.address }

// Headers returns a copy of the message headers.
func (m *Message) Headers() map[string]string { return maps.Clone(m.headers) }

// Header returns one header value.
func (m *Message) Header(name string) string { return m.headers[name] }

// ContentType returns the content type the body is encoded with.
func (m *Message) ContentType() string { return m.contentType }

// RawBody returns the encoded body.
func (m *Message) RawBody() []byte { return m.body }

// IsSend reports whether the message was sent point-to-point rather than
// published.
func (m *Message) IsSend() bool { return m.send }

// OnEnd registers fn to run once the message is settled: a request when
// its reply, failure or timeout completes it, anything else when its
// consumer returns.
func (m *Message) OnEnd(fn func()) {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		fn()
		return
	}
	m.ends = append(m.ends, fn)
	m.mu.Unlock()
}

func (m *Message) finish() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.finished = true
	ends := m.ends
	m.ends = nil
	m.mu.Unlock()
	for _, fn := range ends {
		fn()
	}
}

// Decode unmarshals the body into v.
func (m *Message) Decode(v any) error {
	c, err := m.codec()
	if err != nil {
		return err
	}
	if len(m.body) == 0 {
		return nil
	}
	return c.Unmarshal(m.body, v)
}

// Body decodes the body into its generic form.
func (m *Message) Body() (any, error) {
	var v any
	if err := m.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func (m *Message) codec() (codec.Codec, error) {
	c, err := m.bus.codecs.Lookup(m.contentType)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBus, errors.KindUnsupported, err, "decode message body")
	}
	return c, nil
}

// Reply answers a request with body. Replies to messages that expect none
// are dropped; only the first reply or failure counts.
func (m *Message) Reply(body any) error {
	return m.ReplyWithOptions(body, DeliveryOptions{})
}

// ReplyWithOptions answers a request with body, headers and content type.
func (m *Message) ReplyWithOptions(body any, opts DeliveryOptions) error {
	if m.reply == nil || !m.replied.CompareAndSwap(false, true) {
		return nil
	}
	if opts.ContentType == "" {
		opts.ContentType = m.contentType
	}
	r, err := m.bus.newMessage("", body, opts, true)
	if err != nil {
		m.replied.Store(false)
		return err
	}
	m.reply(r, nil)
	return nil
}

func (m *Message) noHandlers() {
	if m.reply == nil || !m.replied.CompareAndSwap(false, true) {
		return
	}
	m.reply(nil, errors.DelegateFailure(FailureNoHandlers, -1, "no handlers for address "+m.address))
}

// Fail answers a request with a recipient failure.
func (m *Message) Fail(code int, message string) error {
	if m.reply == nil || !m.replied.CompareAndSwap(false, true) {
		return nil
	}
	m.reply(nil, errors.DelegateFailure(FailureRecipient, code, message))
	return nil
}
