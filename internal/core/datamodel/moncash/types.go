package moncash

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// TokenResponse is the body of POST /oauth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

type RetrieveTransactionRequest struct {
	TransactionID string `json:"transactionId"`
}

// RetrieveTransactionResponse is the body of POST /v1/RetrieveTransactionPayment.
// Payment stays raw so it can be stored and echoed back untouched.
type RetrieveTransactionResponse struct {
	Path      string          `json:"path"`
	Payment   json.RawMessage `json:"payment"`
	Timestamp int64           `json:"timestamp"`
	Status    int             `json:"status"`
}

type PaymentDetails struct {
	Reference     FlexString      `json:"reference"`
	TransactionID FlexString      `json:"transaction_id"`
	Cost          decimal.Decimal `json:"cost"`
	Message       string          `json:"message"`
	Payer         string          `json:"payer"`
}

// Transaction is what the gateway client hands back to its callers.
type Transaction struct {
	TransactionID    string
	ReferenceOrderID string
	Amount           decimal.Decimal
	Message          string
	Payer            string
	Raw              json.RawMessage
}

// HasReference reports whether the gateway echoed a merchant order reference.
func (t *Transaction) HasReference() bool {
	return t.ReferenceOrderID != ""
}

// FlexString accepts both JSON strings and numbers; MonCash is not consistent
// about which one it sends for identifiers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}
