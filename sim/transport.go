// In-process realization of the abstract transport: ordered delivery of
// responses to named nodes. Delivery is not lossless: a response sent to a
// full inbox is dropped (see inboxCapacity). A socket-backed implementation would
// carry the same traffic as length-prefixed Envelope frames instead.

package sim

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// inboxCapacity bounds each node's response inbox. An overflowing inbox drops
// the delivery; the client observes the missing leg through its timeout, the
// same as any other transport fault.
const inboxCapacity = 256

// Network routes responses to registered nodes by identifier.
type Network struct {
	mu      sync.RWMutex
	inboxes map[string]chan *Response
	closed  bool
}

// NewNetwork builds an empty routing table.
func NewNetwork() *Network {
	return &Network{inboxes: make(map[string]chan *Response)}
}

// Register creates the inbox for a node id and returns its receive side.
func (n *Network) Register(id string) <-chan *Response {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan *Response, inboxCapacity)
	n.inboxes[id] = ch
	return ch
}

// Send delivers a response to the named node. Returns ErrTransport when the
// destination is unknown or its inbox is full, ErrClosed after shutdown.
// Never blocks.
func (n *Network) Send(dest string, resp *Response) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrClosed
	}
	ch, ok := n.inboxes[dest]
	if !ok {
		return ErrTransport
	}
	select {
	case ch <- resp:
		return nil
	default:
		logrus.Warnf("transport: inbox %s full, dropping %s", dest, resp)
		return ErrTransport
	}
}

// Close tears the routing table down and closes every inbox so receivers
// observe end-of-stream.
func (n *Network) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for _, ch := range n.inboxes {
		close(ch)
	}
}
