package adapter

import (
	"fmt"
	"time"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// Factory constructs adapters for a fixed relay host and timeout, so the
// session router never needs to know which providers happen to support
// native relay.
type Factory struct {
	RelayHost    RelayHost
	RelayTimeout time.Duration
}

// New constructs an adapter for provider.
func (f *Factory) New(provider protocol.Provider) (Adapter, error) {
	switch provider {
	case protocol.ProviderMock:
		return NewMock(), nil
	case protocol.ProviderClaude:
		return NewClaude(f.RelayHost, f.RelayTimeout), nil
	case protocol.ProviderCodex:
		return NewCodex(), nil
	case protocol.ProviderGemini:
		return NewGemini(), nil
	default:
		return nil, fmt.Errorf("adapter: unrecognized provider %q", provider)
	}
}
