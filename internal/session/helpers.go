package session

import (
	"github.com/ronaldeddings/unified-agent/internal/protocol"
	"github.com/ronaldeddings/unified-agent/internal/statestore"
)

func providerFromString(p string) protocol.Provider {
	return protocol.Provider(p)
}

func permissionModeFromString(m string) protocol.PermissionMode {
	mode := protocol.PermissionMode(m)
	if !mode.IsValid() {
		return protocol.PermissionDefault
	}
	return mode
}

func derefOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// KnownProvider is the statestore.KnownProvider predicate used when
// reloading a snapshot: only the four closed providers survive restore.
func KnownProvider(p string) bool {
	return protocol.Provider(p).IsValid()
}

var _ statestore.KnownProvider = KnownProvider
