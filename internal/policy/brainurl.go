package policy

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// BrainURLPolicy validates the backend/"brain" relay URL a session
// initializes with (spec §4.7).
type BrainURLPolicy struct {
	// AllowInsecureWS permits ws:// in addition to wss://.
	AllowInsecureWS bool

	// AllowList, when non-empty, requires the URL to match at least one
	// compiled pattern.
	AllowList []*regexp.Regexp
}

// NewBrainURLPolicy compiles patterns (as regexes) into an allow-list. A
// pattern that fails to compile is skipped silently since the caller is
// expected to validate patterns at config-load time; here we simply never
// match against ones we can't parse.
func NewBrainURLPolicy(allowInsecureWS bool, patterns []string) *BrainURLPolicy {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			compiled = append(compiled, re)
		}
	}
	return &BrainURLPolicy{AllowInsecureWS: allowInsecureWS, AllowList: compiled}
}

// Validate checks raw against the scheme rule and, if configured, the
// allow-list. Returns a *protocol.GatewayError with the taxonomy code on
// failure.
func (p *BrainURLPolicy) Validate(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return protocol.NewError(protocol.CodeInvalidArgument, fmt.Sprintf("invalid brain url: %v", err))
	}

	switch u.Scheme {
	case "wss":
		// always accepted
	case "ws":
		if !p.AllowInsecureWS {
			return protocol.NewError(protocol.CodeInvalidArgument, "ws:// requires an explicit opt-in")
		}
	default:
		return protocol.NewError(protocol.CodeInvalidArgument, fmt.Sprintf("unsupported brain url scheme: %q", u.Scheme))
	}

	if len(p.AllowList) > 0 {
		matched := false
		for _, re := range p.AllowList {
			if re.MatchString(raw) {
				matched = true
				break
			}
		}
		if !matched {
			return protocol.NewError(protocol.CodePolicyDenied, "brain url does not match the configured allow-list")
		}
	}
	return nil
}
