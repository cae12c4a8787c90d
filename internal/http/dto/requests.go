package dto

type ChallengeRequest struct {
	Address string `json:"address"`
}

type LoginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"` // hex encoded personal-sign output
}

type CreateAgreementRequest struct {
	Client    string `json:"client"`
	Developer string `json:"developer"`
	Total     string `json:"total"` // decimal ether string
}

type CreateInviteRequest struct {
	IsClientSide bool   `json:"is_client_side"`
	Total        string `json:"total"`
}

type FundRequest struct {
	Amount string `json:"amount,omitempty"` // decimal ether string, used when no required amount is set
}

type SetTermsRequest struct {
	Deadline uint64 `json:"deadline,omitempty"` // epoch seconds, 0 = default term
}

type MilestoneRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type UpdateMilestoneRequest struct {
	Index       int    `json:"index"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type SubmitMilestoneRequest struct {
	Index   int    `json:"index"`
	Comment string `json:"comment,omitempty"`
}

type MilestoneIndexRequest struct {
	Index int `json:"index"`
}

type ResolveDisputeRequest struct {
	ClientWins bool `json:"client_wins"`
}

type DiscussionMessageRequest struct {
	Message string `json:"message"`
}

type SetUsernameRequest struct {
	Username string `json:"username"`
}
