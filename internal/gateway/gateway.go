package gateway

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Defaults for the platform hand-off document. The payment application
// rejects documents whose version does not match what it shipped with.
const (
	DefaultApplicationID   = "com.bpmellat.merchant"
	DefaultTransactionType = "CardTransaction"
	DefaultVersionName     = "1.0.0"
)

// Request is the document handed to the external payment application
// through the platform-level inter-application invocation.
type Request struct {
	ApplicationID       string `json:"applicationId"`
	PrintPaymentDetails bool   `json:"printPaymentDetails"`
	SaveDetail          bool   `json:"saveDetail"`
	SessionID           string `json:"sessionId"`
	TotalAmount         string `json:"totalAmount"`
	TransactionType     string `json:"transactionType"`
	VersionName         string `json:"versionName"`
}

// NewRequest builds a hand-off document for one sale. Each request gets
// a fresh session id; the payment application uses it to de-duplicate
// re-delivered invocations on its side.
func NewRequest(amount int) Request {
	return Request{
		ApplicationID:       DefaultApplicationID,
		PrintPaymentDetails: false,
		SaveDetail:          false,
		SessionID:           "sessionId" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		TotalAmount:         strconv.Itoa(amount),
		TransactionType:     DefaultTransactionType,
		VersionName:         DefaultVersionName,
	}
}

// ResultHandler receives the asynchronous outcome of a submitted request:
// either a raw settlement payload or an explicit cancel with no payload.
// The environment resolves each submission at most once, but handlers
// must tolerate zero, one, or an out-of-band extra delivery.
type ResultHandler interface {
	HandleResult(raw string)
	HandleCancel()
}

// Gateway is the external payment application boundary. Submit hands the
// request over and returns; the outcome, if any, arrives later on the
// ResultHandler registered with the concrete implementation.
type Gateway interface {
	Submit(ctx context.Context, req Request) error
}
