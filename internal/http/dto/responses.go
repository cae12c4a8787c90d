package dto

type ChallengeResponse struct {
	Message string `json:"message"`
}

type AuthResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	RequestID  string `json:"request_id,omitempty"`

	// RedirectTo points dashboards at a safe fallback when the requested
	// resource does not exist.
	RedirectTo string `json:"redirect_to,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type CreatedResponse struct {
	ID string `json:"id"`
}

type AcceptInviteResponse struct {
	ContractID string `json:"contract_id"`
}

type ConfigResponse struct {
	ChainID               int64  `json:"chain_id"`
	ChainName             string `json:"chain_name"`
	EscrowContractAddress string `json:"escrow_contract_address"`
	Account               string `json:"account"`
	ReadOnly              bool   `json:"read_only"`
}

type UsernameResponse struct {
	Address  string `json:"address"`
	Username string `json:"username"`
}
