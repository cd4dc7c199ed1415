// Package publisher ships twin state, alert sets and simulation results to
// the NATS message bus.
//
// Publish* methods are non-blocking: messages go into a bounded buffer and
// the oldest message is evicted when it is full. Run drains the buffer and
// reconnects with exponential backoff and jitter when the bus is lost.
package publisher
