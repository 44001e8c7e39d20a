// The distributor (D): stateless broadcast fan-out between stage 1 and the
// stage-2 queues.

package sim

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Distributor fans every submitted request out to all stage-2 queues, one
// delivery per kind. The three legs are independent and unordered. With the
// default unbounded queues Submit never blocks.
type Distributor struct {
	outputs   map[Kind]*FIFO
	submitted atomic.Uint64
}

// NewDistributor wires the distributor to its three downstream queues.
func NewDistributor(outputs map[Kind]*FIFO) *Distributor {
	return &Distributor{outputs: outputs}
}

// Submit delivers req to each downstream queue. A leg whose queue has closed
// is dropped; the client observes it through its timeout.
func (d *Distributor) Submit(req *Request) {
	d.submitted.Add(1)
	for _, k := range Kinds {
		if err := d.outputs[k].Enqueue(req); err != nil {
			logrus.Debugf("distributor: leg %s for %s dropped: %v", k, req, err)
		}
	}
}

// Submitted returns how many requests were fanned out. Each submission
// attempts one delivery per downstream queue; legs to a closed queue are
// dropped, so the sum of FIFO.Entered can fall short of 3x this count.
func (d *Distributor) Submitted() uint64 {
	return d.submitted.Load()
}
