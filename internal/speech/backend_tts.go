package speech

import (
	"context"

	"github.com/DarriEy/delta-agent/internal/api"
)

// BackendSynthesizer produces audio through the orchestrator's /tts endpoint.
type BackendSynthesizer struct {
	backend *api.Backend
}

func NewBackendSynthesizer(backend *api.Backend) *BackendSynthesizer {
	return &BackendSynthesizer{backend: backend}
}

func (s *BackendSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	return s.backend.Synthesize(ctx, text)
}
