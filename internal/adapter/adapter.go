// Package adapter defines the consumer-side contract for draining a
// composition's mixed output and a reference tee implementation that
// buffers ahead of a slow downstream sink.
package adapter

import (
	"github.com/radmix/compositor/internal/stream"
)

// Source is the minimal surface an adapter needs from the compositor
// registry: the negotiated output format and a way to attach to a
// composition's live stream.
type Source interface {
	Format() (sampleRate uint32, channels uint8)
	Attach(compositionID string, sampleRate uint32) (*stream.Node, func(), error)
}

// Adapter is the interface every consumer-facing output implements:
// an HTTP chunked stream, an MQTT publisher, an RTP sender, a file
// writer. Close must release the underlying registry attachment.
type Adapter interface {
	Run() error
	Close() error
}
