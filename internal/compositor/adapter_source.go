package compositor

import "github.com/radmix/compositor/internal/stream"

// RegistrySource adapts a Registry and a fixed output channel count to
// the adapter.Source contract, so an adapter can attach to a
// composition's live stream without importing the compositor package
// directly into its interface definition.
type RegistrySource struct {
	Registry   *Registry
	SampleRate uint32
	Channels   uint8
}

func (s *RegistrySource) Format() (uint32, uint8) {
	return s.SampleRate, s.Channels
}

func (s *RegistrySource) Attach(compositionID string, sampleRate uint32) (*stream.Node, func(), error) {
	return s.Registry.GetActiveBuffer(compositionID, sampleRate)
}
