package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments for the two on-chain contracts the daemon talks to. Kept
// in-repo so builds do not depend on generated bindings.

// EscrowABI returns the parsed escrow contract ABI for log decoding outside
// the gateway.
func EscrowABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(escrowABI))
}

const inEuint128Components = `[
	{"name":"ctHash","type":"uint256"},
	{"name":"securityZone","type":"uint8"},
	{"name":"utype","type":"uint8"},
	{"name":"signature","type":"bytes"}
]`

const escrowABI = `[
	{"type":"function","name":"createContract","stateMutability":"nonpayable","inputs":[{"name":"client","type":"address"},{"name":"developer","type":"address"},{"name":"totalAmount","type":"tuple","components":` + inEuint128Components + `},{"name":"totalAmountPlain","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"createInvite","stateMutability":"nonpayable","inputs":[{"name":"isClientSide","type":"bool"},{"name":"totalAmount","type":"tuple","components":` + inEuint128Components + `},{"name":"totalAmountPlain","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"acceptInvite","stateMutability":"nonpayable","inputs":[{"name":"inviteId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"bailOutInvite","stateMutability":"nonpayable","inputs":[{"name":"inviteId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"inviteCreator","stateMutability":"view","inputs":[{"name":"inviteId","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"inviteIsClientSide","stateMutability":"view","inputs":[{"name":"inviteId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"inviteAcceptedBy","stateMutability":"view","inputs":[{"name":"inviteId","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"inviteContractId","stateMutability":"view","inputs":[{"name":"inviteId","type":"bytes32"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"setTerms","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"deadline","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"addMilestone","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"amount","type":"tuple","components":` + inEuint128Components + `},{"name":"description","type":"string"}],"outputs":[]},
	{"type":"function","name":"updateMilestone","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"index","type":"uint256"},{"name":"amount","type":"tuple","components":` + inEuint128Components + `},{"name":"description","type":"string"}],"outputs":[]},
	{"type":"function","name":"removeLastMilestone","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"milestoneDescriptions","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"milestoneCompletionComments","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"addDiscussionMessage","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"message","type":"string"}],"outputs":[]},
	{"type":"function","name":"discussionMessageCount","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"discussionSenders","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"discussionMessages","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"signContract","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"fundEscrow","stateMutability":"payable","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"submitMilestone","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"index","type":"uint256"},{"name":"comment","type":"string"}],"outputs":[]},
	{"type":"function","name":"approveMilestone","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"index","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"rejectMilestone","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"index","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"claimPayout","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"raiseDispute","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"resolveDispute","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"clientWins","type":"bool"}],"outputs":[]},
	{"type":"function","name":"requestCancel","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"cancelContract","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"claimRefund","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"getContract","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"client","type":"address"},{"name":"developer","type":"address"},{"name":"state","type":"uint8"},{"name":"deadline","type":"uint256"},{"name":"balance","type":"uint256"},{"name":"createdAt","type":"uint256"},{"name":"clientSigned","type":"bool"},{"name":"developerSigned","type":"bool"},{"name":"milestoneCount","type":"uint256"},{"name":"approvedCount","type":"uint256"}]},
	{"type":"function","name":"contracts","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"client","type":"address"},{"name":"developer","type":"address"},{"name":"state","type":"uint8"},{"name":"deadline","type":"uint256"},{"name":"balance","type":"uint256"},{"name":"createdAt","type":"uint256"},{"name":"clientSigned","type":"bool"},{"name":"developerSigned","type":"bool"},{"name":"milestoneCount","type":"uint256"},{"name":"approvedCount","type":"uint256"},{"name":"judge","type":"address"},{"name":"disputeResolved","type":"bool"},{"name":"clientWinsDispute","type":"bool"}]},
	{"type":"function","name":"milestones","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"},{"name":"index","type":"uint256"}],"outputs":[{"name":"submitted","type":"bool"},{"name":"approved","type":"bool"},{"name":"submittedAt","type":"uint256"}]},
	{"type":"function","name":"clientCancelRequested","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"developerCancelRequested","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"requiredFundAmount","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"contractCreator","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"userContractCount","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"userContractIds","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"usernames","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"getAddressByUsername","stateMutability":"view","inputs":[{"name":"name","type":"string"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"setUsername","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"}],"outputs":[]},
	{"type":"event","name":"ContractCreated","inputs":[{"name":"contractId","type":"bytes32","indexed":true},{"name":"client","type":"address","indexed":true},{"name":"developer","type":"address","indexed":true}],"anonymous":false},
	{"type":"event","name":"InviteCreated","inputs":[{"name":"inviteId","type":"bytes32","indexed":true},{"name":"creator","type":"address","indexed":true},{"name":"isClientSide","type":"bool","indexed":false}],"anonymous":false},
	{"type":"event","name":"InviteAccepted","inputs":[{"name":"inviteId","type":"bytes32","indexed":true},{"name":"acceptor","type":"address","indexed":true},{"name":"contractId","type":"bytes32","indexed":false}],"anonymous":false},
	{"type":"event","name":"DiscussionMessage","inputs":[{"name":"contractId","type":"bytes32","indexed":true},{"name":"sender","type":"address","indexed":true}],"anonymous":false},
	{"type":"event","name":"ContractStateChanged","inputs":[{"name":"contractId","type":"bytes32","indexed":true},{"name":"newState","type":"uint8","indexed":false}],"anonymous":false}
]`

const resolverABI = `[
	{"type":"function","name":"resolveDispute","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"clientWins","type":"bool"}],"outputs":[]},
	{"type":"function","name":"arbitrators","stateMutability":"view","inputs":[{"name":"who","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`
