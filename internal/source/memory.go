package source

// Memory is an in-memory Source backed by a fixed slice of
// pre-decoded interleaved frames. Used by tests and by any adapter
// that already has fully decoded audio in hand.
type Memory struct {
	sampleRate uint32
	channels   uint8
	frames     [][]float32
}

// NewMemory constructs a Memory source. frames[i] must have length
// channels.
func NewMemory(sampleRate uint32, channels uint8, frames [][]float32) *Memory {
	return &Memory{sampleRate: sampleRate, channels: channels, frames: frames}
}

func (m *Memory) SampleRate() uint32 { return m.sampleRate }
func (m *Memory) Channels() uint8    { return m.channels }

func (m *Memory) Duration() (uint64, bool) {
	return uint64(len(m.frames)), true
}

func (m *Memory) CurrentDurationFrames() uint64 {
	return uint64(len(m.frames))
}

func (m *Memory) Read(frame uint64) ([]float32, bool) {
	if frame >= uint64(len(m.frames)) {
		return nil, false
	}
	return m.frames[frame], true
}
