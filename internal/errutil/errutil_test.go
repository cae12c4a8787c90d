package errutil

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsUserRejection(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"metamask style", errors.New("MetaMask Tx Signature: User denied transaction signature."), true},
		{"viem style", errors.New("User rejected the request."), true},
		{"ethers code string", errors.New("ACTION_REJECTED: user rejected transaction"), true},
		{"json rpc 4001", errors.New(`rpc error {"code":4001,"message":"denied"}`), true},
		{"revert", errors.New("execution reverted: Not a party"), false},
		{"network", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserRejection(tt.err); got != tt.expected {
				t.Errorf("IsUserRejection(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), "boom"},
		{"revert reason extracted", errors.New("execution reverted: Deadline must be in the future"), "Deadline must be in the future"},
		{"nested revert", fmt.Errorf("call failed: %w", errors.New("execution reverted: Not a party")), "Not a party"},
		{"empty reason falls back", errors.New("execution reverted:"), "execution reverted:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.err); got != tt.want {
				t.Errorf("Message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"rejection", errors.New("User rejected the request."), UserRejection},
		{"missing contract", errors.New("execution reverted: Contract does not exist"), NotFound},
		{"missing invite", errors.New("execution reverted: Invite does not exist"), NotFound},
		{"revert", errors.New("execution reverted: Not a party"), LedgerRejected},
		{"wrong network", errors.New("chain id mismatch: have 1, want 421614"), WrongNetwork},
		{"connection", errors.New("dial tcp: connection refused"), NetworkFailure},
		{"timeout", errors.New("context deadline exceeded"), NetworkFailure},
		{"unknown", errors.New("weird"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(Classify(tt.err)); got != tt.want {
				t.Errorf("Classify(%v) kind = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyRevertKeepsBareReason(t *testing.T) {
	classified := Classify(errors.New("execution reverted: Deadline must be in the future"))
	if got := KindOf(classified); got != LedgerRejected {
		t.Fatalf("kind = %v, want %v", got, LedgerRejected)
	}
	if got := Message(classified); got != "Deadline must be in the future" {
		t.Errorf("message = %q, want the bare revert reason", got)
	}
	var e *Error
	if !errors.As(classified, &e) || e.Suggestion == "" {
		t.Error("revert reason should carry a suggestion")
	}
}

func TestClassifyPassesThroughClassified(t *testing.T) {
	orig := New(ConfigurationMissing, "escrow contract address is not configured")
	got := Classify(orig)
	if got != orig {
		t.Error("already classified errors must pass through unchanged")
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) must be nil")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("root")
	wrapped := Wrap(NetworkFailure, cause)
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error must unwrap to its cause")
	}
	if KindOf(wrapped) != NetworkFailure {
		t.Errorf("kind = %v, want %v", KindOf(wrapped), NetworkFailure)
	}
}

func TestSuggestion(t *testing.T) {
	tests := []struct {
		msg        string
		wantAdvice bool
	}{
		{"Deadline must be in the future", true},
		{"Not a party to this contract", true},
		{"Milestone already submitted", true},
		{"Username already taken", true},
		{"something else entirely", false},
	}

	for _, tt := range tests {
		got := Suggestion(tt.msg)
		if tt.wantAdvice && got == "" {
			t.Errorf("Suggestion(%q) expected advice", tt.msg)
		}
		if !tt.wantAdvice && got != "" {
			t.Errorf("Suggestion(%q) = %q, expected none", tt.msg, got)
		}
	}
}
