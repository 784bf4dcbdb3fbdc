package source

import (
	"github.com/radmix/compositor/internal/logging"
	"github.com/radmix/compositor/internal/segstore"
)

// Packet is one decoded run of interleaved samples pulled from a
// Decoder, starting at StartFrame.
type Packet struct {
	StartFrame  uint64
	Interleaved []float32
}

// Decoder is the black-box container/codec decoder a File source
// wraps. It yields (start_frame, decoded_frames) packets and supports
// an accurate seek-to-frame operation. Decode and I/O errors are
// reported through the error return of Next and SeekToFrame; the File
// source converts any such error into end-of-source.
type Decoder interface {
	SampleRate() uint32
	Channels() uint8
	// Next decodes and returns the next packet. ok is false at clean
	// end-of-stream.
	Next() (pkt Packet, ok bool, err error)
	// SeekToFrame repositions the decoder so the next Next() call
	// returns a packet starting at or before frame.
	SeekToFrame(frame uint64) error
}

// File is a file-backed Source: it decodes through an external Decoder
// and caches decoded runs in a shared segment store pile.
type File struct {
	decoder Decoder
	store   *segstore.Store
	pile    segstore.PileID

	sampleRate uint32
	channels   uint8

	lastReturnedFrame uint64
	hasReturned       bool

	terminated  bool
	terminalErr error
}

// NewFile constructs a File source backed by decoder, owning a fresh
// pile in store.
func NewFile(decoder Decoder, store *segstore.Store) *File {
	return &File{
		decoder:    decoder,
		store:      store,
		pile:       store.NewPile(),
		sampleRate: decoder.SampleRate(),
		channels:   decoder.Channels(),
	}
}

func (f *File) SampleRate() uint32 { return f.sampleRate }
func (f *File) Channels() uint8    { return f.channels }

// Duration is unknown for a File source; the container length isn't
// known without a full decode pass, which this component deliberately
// does not perform.
func (f *File) Duration() (uint64, bool) { return 0, false }

// CurrentDurationFrames reports one past the most recently returned
// frame, or 0 before any frame has been returned.
func (f *File) CurrentDurationFrames() uint64 {
	if !f.hasReturned {
		return 0
	}
	return f.lastReturnedFrame + 1
}

// Read implements the file-backed read algorithm from §4.2: consult
// the pile, seek on discontinuity, pull a packet, insert it evictable,
// and recurse at most once.
func (f *File) Read(frame uint64) ([]float32, bool) {
	return f.readAt(frame, true)
}

func (f *File) readAt(frame uint64, allowPull bool) ([]float32, bool) {
	if f.terminated {
		return nil, false
	}

	if seg, ok := f.store.Lookup(f.pile, frame); ok {
		start := (frame - seg.StartFrame) * uint64(seg.Channels)
		end := start + uint64(seg.Channels)
		out := seg.Interleaved[start:end]
		f.lastReturnedFrame = frame
		f.hasReturned = true
		return out, true
	}

	if !allowPull {
		return nil, false
	}

	// A fresh decoder is positioned at frame 0, so only a read that does
	// not continue from the previous position needs a seek.
	if (!f.hasReturned && frame != 0) || (f.hasReturned && frame != f.lastReturnedFrame+1) {
		if err := f.decoder.SeekToFrame(frame); err != nil {
			logging.Error("file source seek failed, terminating source", "error", err)
			f.terminated = true
			f.terminalErr = err
			return nil, false
		}
	}

	pkt, ok, err := f.decoder.Next()
	if err != nil {
		logging.Error("file source decode failed, terminating source", "error", err)
		f.terminated = true
		f.terminalErr = err
		return nil, false
	}
	if !ok {
		f.terminated = true
		return nil, false
	}

	f.store.Insert(f.pile, pkt.StartFrame, f.channels, pkt.Interleaved, false)

	return f.readAt(frame, false)
}
