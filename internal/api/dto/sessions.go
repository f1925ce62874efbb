package dto

// CreateSessionRequest opens a reconciliation session for a period.
// Dates use the 2006-01-02 layout; balances are decimal strings.
type CreateSessionRequest struct {
	PeriodStart    string `json:"period_start"`
	PeriodEnd      string `json:"period_end"`
	BankAccountID  string `json:"bank_account_id,omitempty"`
	OpeningBalance string `json:"opening_balance"`
	ClosingBalance string `json:"closing_balance"`
}

// AutoMatchRequest optionally overrides the configured matching rules.
// Omitted fields fall back to the server defaults.
type AutoMatchRequest struct {
	DateToleranceDays *int    `json:"date_tolerance_days,omitempty"`
	AmountTolerance   *string `json:"amount_tolerance,omitempty"`
	UseReference      *bool   `json:"use_reference,omitempty"`
	UseAmount         *bool   `json:"use_amount,omitempty"`
}

// ManualMatchRequest pairs a bank transaction with a payment.
type ManualMatchRequest struct {
	BankTransactionID string `json:"bank_transaction_id"`
	PaymentID         string `json:"payment_id"`
}

// RemoveMatchRequest identifies the active match to undo.
type RemoveMatchRequest struct {
	BankTransactionID string `json:"bank_transaction_id"`
	PaymentID         string `json:"payment_id"`
}

// MatchResponse is one active or proposed match.
type MatchResponse struct {
	BankTransactionID string `json:"bank_transaction_id"`
	PaymentID         string `json:"payment_id"`
	Confidence        int    `json:"confidence"`
	MatchType         string `json:"match_type"`
}

// DuplicateSuspectResponse flags two feed rows that may be the same
// movement reported twice.
type DuplicateSuspectResponse struct {
	TransactionID      string  `json:"transaction_id"`
	OtherTransactionID string  `json:"other_transaction_id"`
	Similarity         float64 `json:"similarity"`
}

// SummaryResponse is the session's balance verification and match coverage.
type SummaryResponse struct {
	TotalCredits             string                     `json:"total_credits"`
	TotalDebits              string                     `json:"total_debits"`
	CalculatedBalance        string                     `json:"calculated_balance"`
	BalanceDifference        string                     `json:"balance_difference"`
	IsBalanced               bool                       `json:"is_balanced"`
	MatchCount               int                        `json:"match_count"`
	UnmatchedCreditCount     int                        `json:"unmatched_credit_count"`
	UnreconciledPaymentCount int                        `json:"unreconciled_payment_count"`
	DuplicateSuspects        []DuplicateSuspectResponse `json:"duplicate_suspects,omitempty"`
}

// SessionResponse is the full session view for rendering.
type SessionResponse struct {
	ID             string          `json:"id"`
	State          string          `json:"state"`
	PeriodStart    string          `json:"period_start"`
	PeriodEnd      string          `json:"period_end"`
	BankAccountID  string          `json:"bank_account_id,omitempty"`
	OpeningBalance string          `json:"opening_balance"`
	ClosingBalance string          `json:"closing_balance"`
	CreatedAt      string          `json:"created_at"`
	Summary        SummaryResponse `json:"summary"`
	Matches        []MatchResponse `json:"matches"`
}

// SessionListResponse wraps the session collection.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// AutoMatchResponse reports the proposals applied by an auto-match run.
type AutoMatchResponse struct {
	Proposed []MatchResponse `json:"proposed"`
	Summary  SummaryResponse `json:"summary"`
}

// TransactionResponse is one bank transaction in the session's feed.
type TransactionResponse struct {
	ID               string `json:"id"`
	Date             string `json:"date"`
	Description      string `json:"description,omitempty"`
	Reference        string `json:"reference,omitempty"`
	Amount           string `json:"amount"`
	Kind             string `json:"kind"`
	Matched          bool   `json:"matched"`
	MatchedPaymentID string `json:"matched_payment_id,omitempty"`
}

// PaymentResponse is one system payment awaiting reconciliation.
type PaymentResponse struct {
	ID               string `json:"id"`
	PaymentNumber    string `json:"payment_number"`
	PaymentDate      string `json:"payment_date"`
	Amount           string `json:"amount"`
	Reference        string `json:"reference,omitempty"`
	PaymentMethod    string `json:"payment_method,omitempty"`
	CounterpartyName string `json:"counterparty_name,omitempty"`
	Reconciled       bool   `json:"reconciled"`
}
