package policy

import (
	"testing"
	"time"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

func TestRateLimiterAllowsUpToLimitThenDenies(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	if !rl.Allow("s1") || !rl.Allow("s1") {
		t.Fatal("expected first two requests to be allowed")
	}
	if rl.Allow("s1") {
		t.Fatal("expected third request within the window to be denied")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	if !rl.Allow("s1") {
		t.Fatal("expected s1's first request allowed")
	}
	if !rl.Allow("s2") {
		t.Fatal("expected s2 to have its own independent budget")
	}
}

func TestRateLimiterRemoveClearsState(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Allow("s1")
	rl.Remove("s1")
	if !rl.Allow("s1") {
		t.Fatal("expected budget to reset after Remove")
	}
}

func TestBrainURLPolicyAcceptsWSS(t *testing.T) {
	p := NewBrainURLPolicy(false, nil)
	if err := p.Validate("wss://relay.example.com/session"); err != nil {
		t.Fatalf("expected wss:// to be accepted, got %v", err)
	}
}

func TestBrainURLPolicyRejectsPlainWSWithoutOptIn(t *testing.T) {
	p := NewBrainURLPolicy(false, nil)
	err := p.Validate("ws://relay.example.com/session")
	if err == nil {
		t.Fatal("expected ws:// to be rejected without opt-in")
	}
	if protocol.CodeOf(err) != protocol.CodeInvalidArgument {
		t.Fatalf("expected CodeInvalidArgument, got %v", protocol.CodeOf(err))
	}
}

func TestBrainURLPolicyAllowsWSWithOptIn(t *testing.T) {
	p := NewBrainURLPolicy(true, nil)
	if err := p.Validate("ws://relay.example.com/session"); err != nil {
		t.Fatalf("expected ws:// to be accepted with opt-in, got %v", err)
	}
}

func TestBrainURLPolicyRejectsOtherSchemes(t *testing.T) {
	p := NewBrainURLPolicy(true, nil)
	if err := p.Validate("http://relay.example.com"); err == nil {
		t.Fatal("expected non-ws(s) scheme to be rejected")
	}
}

func TestBrainURLPolicyEnforcesAllowList(t *testing.T) {
	p := NewBrainURLPolicy(false, []string{`^wss://trusted\.example\.com/`})
	if err := p.Validate("wss://untrusted.example.com/session"); err == nil {
		t.Fatal("expected url not matching allow-list to be denied")
	} else if protocol.CodeOf(err) != protocol.CodePolicyDenied {
		t.Fatalf("expected CodePolicyDenied, got %v", protocol.CodeOf(err))
	}
	if err := p.Validate("wss://trusted.example.com/session"); err != nil {
		t.Fatalf("expected matching url to be accepted, got %v", err)
	}
}

func TestCheckPayloadSizeRejectsOverCap(t *testing.T) {
	data := make([]byte, 100)
	if err := CheckPayloadSize(data, 50); err == nil {
		t.Fatal("expected oversized payload to be rejected")
	}
	if err := CheckPayloadSize(data, 200); err != nil {
		t.Fatalf("expected undersized payload to pass, got %v", err)
	}
}

func TestValidateCanUseToolDecisionRequiresAllowOrDeny(t *testing.T) {
	if err := ValidateCanUseToolDecision(CanUseToolDecision{Behavior: "allow"}); err != nil {
		t.Fatalf("expected allow to be valid, got %v", err)
	}
	if err := ValidateCanUseToolDecision(CanUseToolDecision{Behavior: "maybe"}); err == nil {
		t.Fatal("expected invalid behavior to be rejected")
	}
}

func TestValidateCanUseToolDecisionRejectsArrayUpdatedInput(t *testing.T) {
	d := CanUseToolDecision{Behavior: "allow", UpdatedInput: []byte(`["not","an","object"]`)}
	if err := ValidateCanUseToolDecision(d); err == nil {
		t.Fatal("expected array updatedInput to be rejected")
	}
}

func TestValidateCanUseToolDecisionAcceptsObjectUpdatedInput(t *testing.T) {
	d := CanUseToolDecision{Behavior: "allow", UpdatedInput: []byte(`{"cmd":"ls"}`)}
	if err := ValidateCanUseToolDecision(d); err != nil {
		t.Fatalf("expected object updatedInput to be accepted, got %v", err)
	}
}
