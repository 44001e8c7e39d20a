// Defines the Request and Response structs exchanged between nodes, and the
// JSON wire envelope used by socket-backed transports.

package sim

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Request models a single unit of work injected by a client. Requests are
// immutable after creation; a retry is a fresh Request with a new ID and an
// incremented Attempt counter.
type Request struct {
	ID        uint64    // globally unique, monotonically assigned
	Kind      Kind      // z1, z2 or z3
	Origin    string    // client node that produced the request
	CreatedAt time.Time // creation timestamp of this attempt
	Attempt   int       // retry counter, 0 for the first send
}

func (r *Request) String() string {
	return fmt.Sprintf("Request(id=%d kind=%s origin=%s attempt=%d)", r.ID, r.Kind, r.Origin, r.Attempt)
}

// Response is one stage-2 leg answer. A client needs an ok=true Response from
// every kind before the deadline to mark the request successful.
type Response struct {
	RequestID    uint64
	ProducerKind Kind
	OK           bool
	CompletedAt  time.Time
}

func (r *Response) String() string {
	return fmt.Sprintf("Response(id=%d producer=%s ok=%t)", r.RequestID, r.ProducerKind, r.OK)
}

// RequiredLegs returns the set of stage-2 kinds a client must hear from for a
// request to succeed. Always all three, regardless of the request's own kind.
func RequiredLegs() map[Kind]struct{} {
	return map[Kind]struct{}{Z1: {}, Z2: {}, Z3: {}}
}

// IDSource hands out monotonically increasing request identifiers. Safe for
// concurrent use; shared by all clients of one engine.
type IDSource struct {
	n atomic.Uint64
}

// Next returns the next unused identifier, starting at 1.
func (s *IDSource) Next() uint64 {
	return s.n.Add(1)
}

// === Wire envelope ===

// Envelope is the length-prefix-friendly JSON shape carried by socket-backed
// transports. Request fields and response fields share one frame; Type
// selects which half is meaningful.
type Envelope struct {
	Type         string  `json:"type"` // "request" or "response"
	ID           uint64  `json:"id"`
	Kind         string  `json:"kind,omitempty"`          // requests only
	Origin       string  `json:"origin,omitempty"`        // requests only
	Attempt      int     `json:"attempt,omitempty"`       // requests only
	ProducerKind string  `json:"producer_kind,omitempty"` // responses only
	OK           bool    `json:"ok"`
	TS           float64 `json:"ts"` // seconds since epoch
}

const (
	envelopeRequest  = "request"
	envelopeResponse = "response"
)

// NewRequestEnvelope packs a Request for the wire.
func NewRequestEnvelope(req *Request) Envelope {
	return Envelope{
		Type:    envelopeRequest,
		ID:      req.ID,
		Kind:    req.Kind.String(),
		Origin:  req.Origin,
		Attempt: req.Attempt,
		TS:      toEpochSeconds(req.CreatedAt),
	}
}

// NewResponseEnvelope packs a Response for the wire.
func NewResponseEnvelope(resp *Response) Envelope {
	return Envelope{
		Type:         envelopeResponse,
		ID:           resp.RequestID,
		ProducerKind: resp.ProducerKind.String(),
		OK:           resp.OK,
		TS:           toEpochSeconds(resp.CompletedAt),
	}
}

// Encode serializes the envelope to its JSON wire form.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a JSON frame back into an Envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Type != envelopeRequest && e.Type != envelopeResponse {
		return Envelope{}, fmt.Errorf("decode envelope: unknown type %q", e.Type)
	}
	return e, nil
}

// ToRequest unpacks a request envelope.
func (e Envelope) ToRequest() (*Request, error) {
	if e.Type != envelopeRequest {
		return nil, fmt.Errorf("envelope type %q is not a request", e.Type)
	}
	kind, err := ParseKind(e.Kind)
	if err != nil {
		return nil, err
	}
	return &Request{
		ID:        e.ID,
		Kind:      kind,
		Origin:    e.Origin,
		CreatedAt: fromEpochSeconds(e.TS),
		Attempt:   e.Attempt,
	}, nil
}

// ToResponse unpacks a response envelope.
func (e Envelope) ToResponse() (*Response, error) {
	if e.Type != envelopeResponse {
		return nil, fmt.Errorf("envelope type %q is not a response", e.Type)
	}
	kind, err := ParseKind(e.ProducerKind)
	if err != nil {
		return nil, err
	}
	return &Response{
		RequestID:    e.ID,
		ProducerKind: kind,
		OK:           e.OK,
		CompletedAt:  fromEpochSeconds(e.TS),
	}, nil
}

func toEpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpochSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9))
}
