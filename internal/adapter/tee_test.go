package adapter

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/radmix/compositor/internal/stream"
)

// fakeSource is a minimal Source that serves one pre-built stream head
// and counts attach/detach calls.
type fakeSource struct {
	mu       sync.Mutex
	head     *stream.Node
	attached int
	detached int
}

func (f *fakeSource) Format() (uint32, uint8) { return 8000, 1 }

func (f *fakeSource) Attach(compositionID string, sampleRate uint32) (*stream.Node, func(), error) {
	f.mu.Lock()
	f.attached++
	f.mu.Unlock()
	return f.head, func() {
		f.mu.Lock()
		f.detached++
		f.mu.Unlock()
	}, nil
}

func TestTeeDrainsBufferNodesToSink(t *testing.T) {
	t.Parallel()

	head := stream.NewHead(4, 1, make([]float32, 4))
	src := &fakeSource{head: head}

	var sink bytes.Buffer
	tee := NewTee(src, "cmp-1", 4096, &sink)

	go func() {
		_ = tee.Run()
	}()

	time.Sleep(10 * time.Millisecond)
	head.PushNext([]float32{1, 2, 3, 4})

	deadline := time.Now().Add(time.Second)
	for sink.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	tee.Close()

	if sink.Len() == 0 {
		t.Fatal("expected tee to have written bytes to sink")
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	if src.attached != 1 {
		t.Errorf("expected exactly 1 attach, got %d", src.attached)
	}
}
