package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finassist/internal/core"
)

// Routing keys on the exchange.
const (
	RoutingTransactionCreated = "transaction.created"
	RoutingAnomalyDetected    = "anomaly.detected"
)

// ErrInvalidMessage marks deliveries that can never be processed. They are
// rejected without requeue.
var ErrInvalidMessage = errors.New("invalid message")

// TransactionCreatedMessage announces a newly stored transaction that should
// be checked against its category history.
type TransactionCreatedMessage struct {
	MessageID   string           `json:"messageId"`
	UserID      string           `json:"userId"`
	Transaction core.Transaction `json:"transaction"`
	Timestamp   time.Time        `json:"timestamp"`
}

func NewTransactionCreatedMessage(userID string, tx core.Transaction) *TransactionCreatedMessage {
	return &TransactionCreatedMessage{
		MessageID:   uuid.NewString(),
		UserID:      userID,
		Transaction: tx,
		Timestamp:   time.Now().UTC(),
	}
}

// Validate reports malformed messages, wrapping ErrInvalidMessage.
func (m *TransactionCreatedMessage) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidMessage)
	}
	if m.Transaction.ID == "" {
		return fmt.Errorf("%w: missing transaction id", ErrInvalidMessage)
	}
	if m.Transaction.CategoryID == "" {
		return fmt.Errorf("%w: missing category id", ErrInvalidMessage)
	}
	return nil
}

func (m *TransactionCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionCreatedMessageFromJSON decodes a delivery body. Decoding
// failures wrap ErrInvalidMessage.
func TransactionCreatedMessageFromJSON(data []byte) (*TransactionCreatedMessage, error) {
	var msg TransactionCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &msg, nil
}

// AnomalyDetectedMessage carries a flagged transaction.
type AnomalyDetectedMessage struct {
	MessageID     string           `json:"messageId"`
	CorrelationID string           `json:"correlationId,omitempty"`
	UserID        string           `json:"userId"`
	Result        core.CheckResult `json:"result"`
	Timestamp     time.Time        `json:"timestamp"`
}

// NewAnomalyDetectedMessage builds the message for r; correlationID is the
// ID of the message that triggered the check.
func NewAnomalyDetectedMessage(correlationID, userID string, r core.CheckResult) *AnomalyDetectedMessage {
	return &AnomalyDetectedMessage{
		MessageID:     uuid.NewString(),
		CorrelationID: correlationID,
		UserID:        userID,
		Result:        r,
		Timestamp:     time.Now().UTC(),
	}
}

func (m *AnomalyDetectedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AnomalyDetectedMessageFromJSON(data []byte) (*AnomalyDetectedMessage, error) {
	var msg AnomalyDetectedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
