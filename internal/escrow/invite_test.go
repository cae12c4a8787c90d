package escrow

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testInvite() *Invite {
	return &Invite{
		ID:           fullID,
		Creator:      clientAddr,
		IsClientSide: true,
	}
}

func TestInviteStatus(t *testing.T) {
	inv := testInvite()

	if got := inv.Status(nil); got != InviteOpen {
		t.Errorf("unaccepted invite status = %v, want %v", got, InviteOpen)
	}

	inv.AcceptedBy = devAddr
	inv.ContractID = fullID
	spawned := testAgreement()
	spawned.State = StateDraft

	if got := inv.Status(spawned); got != InviteAccepted {
		t.Errorf("accepted invite status = %v, want %v", got, InviteAccepted)
	}

	spawned.ClientSigned = true
	spawned.DeveloperSigned = true
	if got := inv.Status(spawned); got != InviteConsumed {
		t.Errorf("both-signed invite status = %v, want %v", got, InviteConsumed)
	}
}

func TestInviteConsumedBy(t *testing.T) {
	inv := testInvite()
	inv.AcceptedBy = devAddr
	inv.ContractID = fullID

	tests := []struct {
		name     string
		mutate   func(a *Agreement)
		expected bool
	}{
		{"draft unsigned", func(a *Agreement) { a.State = StateDraft }, false},
		{"one signature", func(a *Agreement) { a.State = StateDraft; a.ClientSigned = true }, false},
		{"both signed", func(a *Agreement) { a.ClientSigned = true; a.DeveloperSigned = true }, true},
		{"completed", func(a *Agreement) { a.State = StateCompleted }, true},
		{"cancelled", func(a *Agreement) { a.State = StateCancelled }, true},
		{"paid out", func(a *Agreement) { a.State = StatePaidOut }, true},
		{"disputed unsigned", func(a *Agreement) { a.State = StateDisputed }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spawned := testAgreement()
			tt.mutate(spawned)
			if got := inv.ConsumedBy(spawned); got != tt.expected {
				t.Errorf("ConsumedBy = %v, want %v", got, tt.expected)
			}
		})
	}

	if inv.ConsumedBy(nil) {
		t.Error("nil spawned agreement must not consume the invite")
	}
}

func TestInviteCanBailOut(t *testing.T) {
	spawnedDraft := testAgreement()
	spawnedDraft.State = StateDraft

	spawnedSigned := testAgreement()
	spawnedSigned.ClientSigned = true
	spawnedSigned.DeveloperSigned = true

	tests := []struct {
		name       string
		acceptedBy common.Address
		contractID string
		caller     common.Address
		spawned    *Agreement
		expected   bool
	}{
		{"acceptor before signing", devAddr, fullID, devAddr, spawnedDraft, true},
		{"not the acceptor", devAddr, fullID, otherAddr, spawnedDraft, false},
		{"never accepted", common.Address{}, "", devAddr, nil, false},
		{"after both signed", devAddr, fullID, devAddr, spawnedSigned, false},
		{"no spawned contract id", devAddr, "", devAddr, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := testInvite()
			inv.AcceptedBy = tt.acceptedBy
			inv.ContractID = tt.contractID
			if got := inv.CanBailOut(tt.caller, tt.spawned); got != tt.expected {
				t.Errorf("CanBailOut = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestInviteSelfAcceptance(t *testing.T) {
	inv := testInvite()
	if !inv.IsSelfAcceptance(clientAddr) {
		t.Error("creator accepting own invite should be flagged")
	}
	if inv.IsSelfAcceptance(devAddr) {
		t.Error("counterparty acceptance must not be flagged")
	}
	if inv.IsSelfAcceptance(common.Address{}) {
		t.Error("zero acceptor must not be flagged")
	}
}
