package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned when the payload cannot be parsed into transfer
// records. An empty transfer list is not malformed; it normalizes to an
// empty slice.
var ErrMalformed = errors.New("malformed payload")

// TransferEvent is the canonical record of a token transfer, immutable once
// constructed. Value stays an arbitrary-precision decimal string end to end;
// scaling for display is the sink formatter's concern.
type TransferEvent struct {
	TransactionHash string    `json:"transaction_hash"`
	LogIndex        int       `json:"log_index"`
	From            string    `json:"from_address"`
	To              string    `json:"to_address"`
	Value           string    `json:"value"`
	TokenName       string    `json:"token_name,omitempty"`
	TokenSymbol     string    `json:"token_symbol,omitempty"`
	TokenDecimals   int       `json:"token_decimals"`
	ChainID         string    `json:"chain_id"`
	Confirmed       bool      `json:"confirmed"`
	ReceivedAt      time.Time `json:"received_at"`
}

// streamPayload mirrors the provider's webhook body. Only the fields the
// gateway consumes are declared; everything else is ignored.
type streamPayload struct {
	ChainID        string           `json:"chainId"`
	Confirmed      bool             `json:"confirmed"`
	ERC20Transfers []transferRecord `json:"erc20Transfers"`
}

type transferRecord struct {
	TransactionHash string          `json:"transactionHash"`
	LogIndex        json.RawMessage `json:"logIndex"` // providers send both numbers and strings
	From            string          `json:"from"`
	To              string          `json:"to"`
	Value           string          `json:"value"`
	TokenName       string          `json:"tokenName"`
	TokenSymbol     string          `json:"tokenSymbol"`
	TokenDecimals   json.RawMessage `json:"tokenDecimals"`
}

// Normalize parses a raw webhook body into canonical transfer events.
// The body must already be authenticated; Normalize performs no signature
// checks. A present-but-empty transfer list returns an empty slice and no
// error, which the caller treats as "nothing to do".
func Normalize(body []byte, receivedAt time.Time) ([]TransferEvent, error) {
	var payload streamPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	events := make([]TransferEvent, 0, len(payload.ERC20Transfers))
	for i, rec := range payload.ERC20Transfers {
		ev, err := rec.toEvent(payload, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: transfer %d: %v", ErrMalformed, i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r transferRecord) toEvent(p streamPayload, receivedAt time.Time) (TransferEvent, error) {
	switch {
	case r.TransactionHash == "":
		return TransferEvent{}, errors.New("missing transactionHash")
	case r.From == "":
		return TransferEvent{}, errors.New("missing from")
	case r.To == "":
		return TransferEvent{}, errors.New("missing to")
	case r.Value == "":
		return TransferEvent{}, errors.New("missing value")
	}
	if !isDecimal(r.Value) {
		return TransferEvent{}, fmt.Errorf("value %q is not a decimal string", r.Value)
	}

	return TransferEvent{
		TransactionHash: r.TransactionHash,
		LogIndex:        flexInt(r.LogIndex),
		From:            r.From,
		To:              r.To,
		Value:           r.Value,
		TokenName:       r.TokenName,
		TokenSymbol:     r.TokenSymbol,
		TokenDecimals:   flexInt(r.TokenDecimals),
		ChainID:         p.ChainID,
		Confirmed:       p.Confirmed,
		ReceivedAt:      receivedAt,
	}, nil
}

func isDecimal(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// flexInt decodes an integer that providers serialize either as a JSON
// number or as a quoted string. Anything unparseable decodes to zero.
func flexInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var v int
		if _, err := fmt.Sscanf(s, "%d", &v); err == nil {
			return v
		}
	}
	return 0
}
