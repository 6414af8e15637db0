package types

import "fmt"

// ReplyOn decides when the emitter of a sub-message is called back with its
// outcome.
type ReplyOn uint8

const (
	ReplyNever ReplyOn = iota
	ReplySuccess
	ReplyError
	ReplyAlways
)

func (r ReplyOn) String() string {
	switch r {
	case ReplyNever:
		return "never"
	case ReplySuccess:
		return "success"
	case ReplyError:
		return "error"
	case ReplyAlways:
		return "always"
	default:
		return fmt.Sprintf("reply_on(%d)", uint8(r))
	}
}

// OnSuccess reports whether a successful outcome triggers a reply.
func (r ReplyOn) OnSuccess() bool { return r == ReplySuccess || r == ReplyAlways }

// OnError reports whether a failed outcome triggers a reply.
func (r ReplyOn) OnError() bool { return r == ReplyError || r == ReplyAlways }

// SubMsg is a message emitted by a contract together with its reply policy.
// ID and Payload are handed back verbatim in the Reply.
type SubMsg struct {
	ID      uint64
	Msg     Msg
	ReplyOn ReplyOn
	Payload []byte
}

// NewSubMsg wraps msg as a fire-and-forget sub-message.
func NewSubMsg(msg Msg) SubMsg {
	return SubMsg{Msg: msg, ReplyOn: ReplyNever}
}

// ReplyOnSuccess wraps msg so that the emitter is called back when it
// succeeds.
func ReplyOnSuccess(id uint64, msg Msg) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplySuccess}
}

// ReplyOnError wraps msg so that a failure is handed to the emitter instead
// of aborting it.
func ReplyOnError(id uint64, msg Msg) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplyError}
}

// ReplyOnAlways wraps msg so that the emitter sees every outcome.
func ReplyOnAlways(id uint64, msg Msg) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplyAlways}
}

// WithPayload attaches an opaque payload that is returned in the reply.
func (s SubMsg) WithPayload(payload []byte) SubMsg {
	s.Payload = append([]byte(nil), payload...)
	return s
}

// SubMsgResponse is the successful outcome of a sub-message.
type SubMsgResponse struct {
	Events []Event
	Data   []byte
}

// SubMsgResult is either a response or the error string of a failed
// sub-message.
type SubMsgResult struct {
	Ok  *SubMsgResponse
	Err string
}

func (r SubMsgResult) IsOk() bool { return r.Ok != nil }

// Reply is handed to a contract's reply entry point.
type Reply struct {
	ID      uint64
	Payload []byte
	Result  SubMsgResult
}

// Response is what a contract entry point returns.
type Response struct {
	Data       []byte
	Attributes []Attribute
	Events     []Event
	Messages   []SubMsg
}

// NewResponse returns an empty response ready for chaining.
func NewResponse() *Response {
	return &Response{}
}

func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

func (r *Response) AddEvent(event Event) *Response {
	r.Events = append(r.Events, event)
	return r
}

// AddMessage appends msg as a sub-message that never replies.
func (r *Response) AddMessage(msg Msg) *Response {
	r.Messages = append(r.Messages, NewSubMsg(msg))
	return r
}

func (r *Response) AddSubMessage(sub SubMsg) *Response {
	r.Messages = append(r.Messages, sub)
	return r
}

func (r *Response) SetData(data []byte) *Response {
	r.Data = append([]byte(nil), data...)
	return r
}

// AppResponse is the chain level outcome of a message: the events of the
// whole call tree in execution order and the resulting data.
type AppResponse struct {
	Events []Event
	Data   []byte
}

// EventsOfType returns every event of the given type in order.
func (r *AppResponse) EventsOfType(eventType string) []Event {
	if r == nil {
		return nil
	}
	var out []Event
	for _, ev := range r.Events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// HasEvent reports whether an event of eventType carrying every attribute in
// attrs was emitted.
func (r *AppResponse) HasEvent(eventType string, attrs ...Attribute) bool {
	for _, ev := range r.EventsOfType(eventType) {
		if ev.Has(attrs...) {
			return true
		}
	}
	return false
}

// Attribute returns the value of key on the first event of eventType that
// carries it.
func (r *AppResponse) Attribute(eventType, key string) (string, bool) {
	for _, ev := range r.EventsOfType(eventType) {
		if v, ok := ev.Value(key); ok {
			return v, true
		}
	}
	return "", false
}
