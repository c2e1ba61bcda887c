package proxy

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
)

// TimestampLayout is the ISO 8601 form used in envelope metadata.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope is the body of every proxied response.
//
// Success is true exactly when Data is set and Error is empty. Use
// NewSuccess and NewFailure to build one.
type Envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Upstream *UpstreamDetail `json:"upstream,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// UpstreamDetail carries a forwarded upstream error response.
type UpstreamDetail struct {
	Status int `json:"status"`

	// Body is the upstream JSON body, or its text when it is not JSON.
	Body any `json:"body,omitempty"`
}

// Metadata describes where and when a response was produced.
type Metadata struct {
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// NewMetadata stamps t in UTC.
func NewMetadata(t time.Time, source string) *Metadata {
	return &Metadata{
		Timestamp: t.UTC().Format(TimestampLayout),
		Source:    source,
	}
}

// NewSuccess wraps data. A nil data is encoded as JSON null so that the
// envelope still carries a data field.
func NewSuccess(data json.RawMessage, meta *Metadata) Envelope {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return Envelope{
		Success:  true,
		Data:     data,
		Metadata: meta,
	}
}

// NewFailure reports message. An empty message is replaced so that a
// failure always carries an error field.
func NewFailure(message string, meta *Metadata) Envelope {
	if message == "" {
		message = "unknown error"
	}
	return Envelope{
		Success:  false,
		Error:    message,
		Metadata: meta,
	}
}

// WithUpstream attaches the upstream status and body to a failure.
func (e Envelope) WithUpstream(status int, body []byte) Envelope {
	detail := &UpstreamDetail{Status: status}
	switch {
	case len(body) == 0:
	case sonic.Valid(body):
		detail.Body = json.RawMessage(body)
	default:
		detail.Body = string(body)
	}
	e.Upstream = detail
	return e
}

// Valid reports whether the envelope satisfies the success invariant.
func (e Envelope) Valid() bool {
	return e.Success == (len(e.Data) > 0 && e.Error == "")
}

// Marshal encodes the envelope.
func (e Envelope) Marshal() ([]byte, error) {
	return sonic.Marshal(e)
}
