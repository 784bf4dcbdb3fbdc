// Package stream implements the buffer stream: an append-only,
// singly-linked list of immutable fixed-size mixed buffers with
// blocking, multi-consumer readers.
package stream

import (
	"math"
	"sync"

	"github.com/radmix/compositor/internal/xerrors"
)

// Node is one immutable mixed buffer of exactly BufSize interleaved
// samples, plus an initially-empty successor slot that transitions at
// most once from empty to holding the next node.
type Node struct {
	Buffer []float32

	mu   sync.Mutex
	cond *sync.Cond
	next *Node
}

// NewNode wraps buf as the head of a new stream. len(buf) must satisfy
// the BufSize/channels invariant validated by NewHead.
func NewNode(buf []float32) *Node {
	n := &Node{Buffer: buf}
	n.cond = sync.NewCond(&n.mu)
	return n
}

// NewHead validates the stream-wide invariants (bufSize even, a
// multiple of channels) and constructs the head node for a fresh
// producer.
func NewHead(bufSize int, channels uint8, initial []float32) *Node {
	if channels == 0 {
		xerrors.Newf("channels must be positive").
			Category(xerrors.CategoryBufferStream).
			Component("stream").
			MustBuild()
	}
	if bufSize%2 != 0 || bufSize%int(channels) != 0 {
		xerrors.Newf("buf_size %d must be even and a multiple of channels %d", bufSize, channels).
			Category(xerrors.CategoryBufferStream).
			Component("stream").
			MustBuild()
	}
	if len(initial) != bufSize {
		xerrors.Newf("initial buffer length %d does not match buf_size %d", len(initial), bufSize).
			Category(xerrors.CategoryBufferStream).
			Component("stream").
			MustBuild()
	}
	return NewNode(initial)
}

// FramesPerNode returns BufSize / channels.
func FramesPerNode(bufSize int, channels uint8) int {
	return bufSize / int(channels)
}

// PushNext appends buf as this node's successor, signaling any
// blocked readers. Calling PushNext on a node whose successor is
// already set is a caller-contract violation and panics.
func (n *Node) PushNext(buf []float32) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.next != nil {
		xerrors.Newf("push_next called on node with an already-populated successor").
			Category(xerrors.CategoryBufferStream).
			Component("stream").
			MustBuild()
	}

	next := NewNode(buf)
	n.next = next
	n.cond.Broadcast()
	return next
}

// Next blocks until the successor slot is populated, then returns it.
// Multiple consumers may call Next concurrently on the same node; each
// independently progresses to the same successor.
func (n *Node) Next() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	for n.next == nil {
		n.cond.Wait()
	}
	return n.next
}

// peekNext returns the successor without blocking.
func (n *Node) peekNext() (*Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.next, n.next != nil
}

// SetToHead performs a non-blocking walk to the current tail: while a
// successor exists, advance; stop at the first node with no populated
// successor.
func SetToHead(node *Node) *Node {
	for {
		next, ok := node.peekNext()
		if !ok {
			return node
		}
		node = next
	}
}

// Live walks to the tail and then forward at most lookaheadNodes
// additional populated nodes (those appended during the walk), so a
// newly-attached consumer begins close to the producer's write-edge.
// It never waits for a node that has not been written yet.
func Live(node *Node, sampleRate uint32, channels uint8, bufSize int, lookaheadSec float64) *Node {
	node = SetToHead(node)

	framesPerNode := FramesPerNode(bufSize, channels)
	lookaheadNodes := int(math.Ceil(lookaheadSec * float64(sampleRate) / float64(framesPerNode)))

	for i := 0; i < lookaheadNodes; i++ {
		next, ok := node.peekNext()
		if !ok {
			break
		}
		node = next
	}
	return node
}
