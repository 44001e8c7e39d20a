// Package sim implements the queuing-network simulator core.
//
// # Reading Guide
//
// Start with these three files to understand the pipeline:
//   - message.go: Request/Response lifecycle and the wire envelope
//   - queue.go: the stage-1 priority FIFO with per-kind signalling
//   - engine.go: topology construction, the run loop, and drain shutdown
//
// # Architecture
//
// Flow: clients (client.go) enqueue into the priority queue (queue.go); the
// per-kind stage-1 pools (pool.go) serve it round-robin (roundrobin.go) and
// forward through the distributor (distributor.go) into the stage-2 queues,
// whose fallible processors (stage2.go) answer the originating client over
// the in-process transport (transport.go). The autoscaler (autoscaler.go)
// observes queue wait and resizes the stage-1 pools.
//
// All stochastic draws are per-entity and sub-seeded from the master seed
// (rng.go, servicetime.go, arrival.go), so each entity's arrival gaps, kind
// choices, service times and failure draws repeat exactly under the same
// seed. The pipeline runs in wall-clock time, so counts over a run (such as
// the total number of requests) depend on scheduling and are not exactly
// reproducible.
package sim
