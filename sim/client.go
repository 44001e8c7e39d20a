// Client nodes (K): generate requests on a Poisson schedule, correlate the
// three stage-2 legs per request, and apply timeout + retry.

package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// legTracker is the fan-in state for one in-flight attempt.
type legTracker struct {
	req      *Request
	awaiting map[Kind]struct{} // kinds still owed an ok=true
	deadline time.Time
}

// Client owns its tracker map exclusively; no state is shared between
// clients beyond the queue, the network, the id source, and the metrics
// collector.
type Client struct {
	id      string
	kinds   []Kind // kinds this client emits, chosen uniformly
	queue   *PriorityQueue
	inbox   <-chan *Response
	sampler ArrivalSampler
	rng     *rand.Rand
	ids     *IDSource
	faults  FaultConfig
	metrics *Collector

	mu      sync.Mutex
	pending map[uint64]*legTracker

	wg sync.WaitGroup
}

// NewClient wires a client node. The inbox must be the channel registered for
// id on the network the stage-2 workers reply through.
func NewClient(id string, kinds []Kind, queue *PriorityQueue, inbox <-chan *Response,
	rate float64, rng *rand.Rand, ids *IDSource, faults FaultConfig, metrics *Collector) *Client {
	return &Client{
		id:      id,
		kinds:   kinds,
		queue:   queue,
		inbox:   inbox,
		sampler: NewPoissonSampler(rate),
		rng:     rng,
		ids:     ids,
		faults:  faults,
		metrics: metrics,
	}
}

// Start launches the generator, the response consumer and the timeout
// checker. genCtx stops generation only (drain mode); ctx stops everything.
func (c *Client) Start(ctx, genCtx context.Context) {
	c.mu.Lock()
	c.pending = make(map[uint64]*legTracker)
	c.mu.Unlock()

	c.wg.Add(3)
	go c.generate(genCtx)
	go c.consumeResponses(ctx)
	go c.checkTimeouts(ctx)
	logrus.Infof("client %s: started, emitting %v", c.id, c.kinds)
}

// Wait blocks until all client goroutines have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Pending returns the number of in-flight attempts.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) generate(ctx context.Context) {
	defer c.wg.Done()
	for {
		if !sleepInterruptible(ctx, c.sampler.SampleIAT(c.rng)) {
			return
		}
		kind := c.kinds[c.rng.Intn(len(c.kinds))]
		req := &Request{
			ID:        c.ids.Next(),
			Kind:      kind,
			Origin:    c.id,
			CreatedAt: time.Now(),
		}
		c.track(req)
		if err := c.queue.Enqueue(req); err != nil {
			c.untrack(req.ID)
			return
		}
		c.metrics.RecordSent(c.id)
		logrus.Debugf("client %s: sent %s", c.id, req)
	}
}

func (c *Client) consumeResponses(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-c.inbox:
			if !ok {
				return
			}
			c.handleResponse(resp)
		}
	}
}

// handleResponse applies one leg answer. Unknown request ids (late
// stragglers, duplicates, responses after the final outcome) are discarded
// silently.
func (c *Client) handleResponse(resp *Response) {
	c.mu.Lock()
	t, ok := c.pending[resp.RequestID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if resp.OK {
		delete(t.awaiting, resp.ProducerKind)
		if len(t.awaiting) > 0 {
			c.mu.Unlock()
			return
		}
		// all three legs answered ok: success
		delete(c.pending, resp.RequestID)
		c.mu.Unlock()
		latency := time.Since(t.req.CreatedAt)
		c.metrics.RecordOutcome(c.id, true, latency)
		logrus.Debugf("client %s: request %d succeeded in %s", c.id, resp.RequestID, latency.Round(time.Millisecond))
		return
	}

	// Definitive ok=false short-circuits the attempt ahead of the deadline.
	delete(c.pending, resp.RequestID)
	c.mu.Unlock()
	logrus.Debugf("client %s: request %d leg %s failed", c.id, resp.RequestID, resp.ProducerKind)
	c.retryOrFail(t, ErrLegFailed)
}

func (c *Client) checkTimeouts(ctx context.Context) {
	defer c.wg.Done()

	interval := c.faults.ClientTimeout / 4
	if interval > time.Second {
		interval = time.Second
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.mu.Lock()
			var expired []*legTracker
			for id, t := range c.pending {
				if now.After(t.deadline) {
					delete(c.pending, id)
					expired = append(expired, t)
				}
			}
			c.mu.Unlock()
			for _, t := range expired {
				c.retryOrFail(t, ErrTimeout)
			}
		}
	}
}

// retryOrFail decides the attempt's aftermath: resend with a fresh id and an
// incremented attempt counter, or record the final failure. Retries count as
// the same logical request. cause is ErrTimeout or ErrLegFailed.
func (c *Client) retryOrFail(t *legTracker, cause error) {
	if t.req.Attempt < c.faults.MaxRetries {
		req := &Request{
			ID:        c.ids.Next(),
			Kind:      t.req.Kind,
			Origin:    c.id,
			CreatedAt: time.Now(),
			Attempt:   t.req.Attempt + 1,
		}
		c.track(req)
		if err := c.queue.Enqueue(req); err != nil {
			// queue already shut; the logical request is done for
			c.untrack(req.ID)
			c.metrics.RecordOutcome(c.id, false, time.Since(t.req.CreatedAt))
			return
		}
		c.metrics.RecordRetry(c.id)
		logrus.Debugf("client %s: request %d hit %v, retrying as %s", c.id, t.req.ID, cause, req)
		return
	}
	c.metrics.RecordOutcome(c.id, false, time.Since(t.req.CreatedAt))
	logrus.Debugf("client %s: request %d failed permanently: %v after %v (attempt %d)",
		c.id, t.req.ID, ErrExhausted, cause, t.req.Attempt)
}

func (c *Client) track(req *Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[req.ID] = &legTracker{
		req:      req,
		awaiting: RequiredLegs(),
		deadline: time.Now().Add(c.faults.ClientTimeout),
	}
}

func (c *Client) untrack(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}
