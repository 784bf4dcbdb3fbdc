// Package source implements frame-addressable PCM readers: file-backed
// sources that decode through a segment store pile, and queue sources
// that concatenate child sources end-to-end in frame space.
package source

// Source is the contract every playable audio source satisfies.
type Source interface {
	// SampleRate is constant for the lifetime of the source.
	SampleRate() uint32
	// Channels is constant for the lifetime of the source.
	Channels() uint8
	// Duration returns the known frame count, (0, true) for
	// known-infinite, or (0, false) if unknown.
	Duration() (frames uint64, known bool)
	// CurrentDurationFrames may do non-trivial work; stable once the
	// source has reached end-of-stream.
	CurrentDurationFrames() uint64
	// Read returns the interleaved frame at frame, or ok=false past
	// end-of-source.
	Read(frame uint64) (interleaved []float32, ok bool)
}
