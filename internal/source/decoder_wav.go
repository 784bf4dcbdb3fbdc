package source

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/go-audio/wav"
)

// ErrInvalidContainer is returned when a decoder is asked to open a
// stream it cannot recognize.
var ErrInvalidContainer = errors.New("source: invalid or unrecognized container")

const wavPacketFrames = 4096

// WAVDecoder implements Decoder over a WAV container. go-audio/wav
// parses the header; PCM frames are then read directly off the
// underlying reader so SeekToFrame can reposition by exact byte
// offset without relying on decoder-internal seek state.
type WAVDecoder struct {
	r io.ReadSeeker

	sampleRate   uint32
	channels     uint8
	bitDepth     uint16
	dataStart    int64
	blockAlign   int64

	nextFrame uint64
}

// NewWAVDecoder opens a WAV stream for decoding. r must support Seek
// for SeekToFrame to reposition accurately.
func NewWAVDecoder(r io.ReadSeeker) (*WAVDecoder, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidContainer
	}
	dec.ReadInfo()

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	dec = wav.NewDecoder(r)
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}
	dataStart, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	channels := uint8(dec.NumChans)
	bitDepth := dec.BitDepth

	return &WAVDecoder{
		r:          r,
		sampleRate: dec.SampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
		dataStart:  dataStart,
		blockAlign: int64(channels) * int64(bitDepth) / 8,
	}, nil
}

func (d *WAVDecoder) SampleRate() uint32 { return d.sampleRate }
func (d *WAVDecoder) Channels() uint8    { return d.channels }

func (d *WAVDecoder) Next() (Packet, bool, error) {
	raw := make([]byte, wavPacketFrames*int(d.blockAlign))
	n, err := io.ReadFull(d.r, raw)
	if n == 0 {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Packet{}, false, nil
		}
		return Packet{}, false, err
	}
	if err == io.ErrUnexpectedEOF {
		err = nil // short final packet, still valid
	} else if err == io.EOF {
		err = nil
	}
	if err != nil {
		return Packet{}, false, err
	}

	raw = raw[:n-(n%int(d.blockAlign))]
	frameCount := len(raw) / int(d.blockAlign)
	interleaved := decodePCM16LE(raw, d.bitDepth)

	pkt := Packet{StartFrame: d.nextFrame, Interleaved: interleaved}
	d.nextFrame += uint64(frameCount)
	return pkt, true, nil
}

func (d *WAVDecoder) SeekToFrame(frame uint64) error {
	offset := d.dataStart + int64(frame)*d.blockAlign
	if _, err := d.r.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	d.nextFrame = frame
	return nil
}

// decodePCM16LE converts little-endian signed PCM samples to float32
// in [-1, 1]. 8-bit samples are read as unsigned, 16-, 24- and 32-bit
// samples as signed; each is scaled by its depth's maximum amplitude.
func decodePCM16LE(raw []byte, bitDepth uint16) []float32 {
	bytesPerSample := int(bitDepth) / 8
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	count := len(raw) / bytesPerSample
	out := make([]float32, count)
	maxAmplitude := float32(int64(1) << (bitDepth - 1))

	for i := 0; i < count; i++ {
		off := i * bytesPerSample
		var v int32
		switch bytesPerSample {
		case 1:
			v = int32(raw[off]) - 128
		case 2:
			v = int32(int16(binary.LittleEndian.Uint16(raw[off:])))
		case 3:
			v = int32(raw[off]) | int32(raw[off+1])<<8 | int32(int8(raw[off+2]))<<16
		case 4:
			v = int32(binary.LittleEndian.Uint32(raw[off:]))
		default:
			v = int32(int16(binary.LittleEndian.Uint16(raw[off:])))
		}
		out[i] = float32(v) / maxAmplitude
	}
	return out
}
