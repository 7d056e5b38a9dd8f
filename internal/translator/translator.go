package translator

import (
	"encoding/json"
	"fmt"
)

// SuccessCode is the acquirer's canonical approval result code.
const SuccessCode = "000"

type Status int

const (
	StatusAuth Status = iota
	StatusSettled
	StatusSettleFailed
)

func (s Status) String() string {
	switch s {
	case StatusAuth:
		return "AUTH"
	case StatusSettled:
		return "SETTLED"
	case StatusSettleFailed:
		return "SETTLE_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Transaction is the canonical record built from a raw settlement payload.
// Built once by Translate; immutable thereafter.
type Transaction struct {
	Status           Status
	Amount           string
	ResponseCode     string
	ReferenceNo      string
	Trace            string
	TerminalNo       string
	SettleFailReason string
	Time             string
}

func (t Transaction) IsSuccess() bool {
	return t.ResponseCode == SuccessCode
}

// Translate parses a raw settlement payload from the external payment
// application into a Transaction. The payload is a loosely structured
// key/value document; on the success path the acquirer guarantees the
// identity fields, on the failure path nothing is guaranteed. Any parse
// problem is returned as an error, never propagated as a panic.
func Translate(raw string) (*Transaction, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("settlement payload is not a JSON document: %w", err)
	}

	tx := &Transaction{Status: StatusAuth, Amount: "0"}

	if str(doc, "resultCode") == SuccessCode {
		tx.Status = StatusSettled
		tx.ResponseCode = SuccessCode

		// Contract fields for an approved settlement. Absence here is an
		// acquirer contract violation, surfaced as a translator failure.
		var date, clock string
		for field, dst := range map[string]*string{
			"terminalID":        &tx.TerminalNo,
			"dateOfTransaction": &date,
			"timeOfTransaction": &clock,
		} {
			v, ok := doc[field].(string)
			if !ok {
				return nil, fmt.Errorf("approved settlement is missing required field %q", field)
			}
			*dst = v
		}
		if _, ok := doc["maskedCardNumber"].(string); !ok {
			return nil, fmt.Errorf("approved settlement is missing required field %q", "maskedCardNumber")
		}
		tx.Time = date + " " + clock

		tx.Trace = str(doc, "retrievalReferencedNumber")
		tx.ReferenceNo = str(doc, "referenceID")
		if amount := str(doc, "transactionAmount"); amount != "" {
			tx.Amount = amount
		}
		return tx, nil
	}

	tx.Status = StatusSettleFailed
	tx.TerminalNo = str(doc, "terminalID")
	tx.Trace = str(doc, "retrievalReferencedNumber")
	tx.ReferenceNo = str(doc, "referenceID")
	tx.ResponseCode = str(doc, "resultCode")
	tx.SettleFailReason = str(doc, "resultDescription")
	if date := str(doc, "dateOfTransaction"); date != "" {
		tx.Time = date + " " + str(doc, "timeOfTransaction")
	}
	if amount := str(doc, "transactionAmount"); amount != "" {
		tx.Amount = amount
	}
	return tx, nil
}

func str(doc map[string]interface{}, field string) string {
	if v, ok := doc[field].(string); ok {
		return v
	}
	return ""
}
