// Package event defines the envelope and payload schemas for every domain
// event exchanged between the services, along with the topic names they are
// published to.
package event

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topic names. One topic per event type; the partition key is always the
// order id, so all events for one order stay ordered.
const (
	TopicOrderCreated     = "order-created"
	TopicPaymentProcessed = "payment-processed"
)

// Event type tags carried in the envelope.
const (
	TypeOrderCreated     = "ORDER_CREATED"
	TypePaymentProcessed = "PAYMENT_PROCESSED"
)

// Envelope is the common header wrapped around every published event. A fresh
// event id is assigned per publish, so a redelivered message keeps its id
// while a re-published one does not.
type Envelope struct {
	EventID   uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"eventType"`
}

// NewEnvelope returns an envelope with a fresh id and the current UTC time.
func NewEnvelope(eventType string) Envelope {
	return Envelope{
		EventID:   uuid.New(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
	}
}

// OrderItem is the immutable snapshot of one order line carried inside
// OrderCreated. It is a copy of the line at submission time, not a reference
// to the live aggregate.
type OrderItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderCreated announces a newly persisted order. Published by the order
// service, consumed by the payment service.
type OrderCreated struct {
	Envelope

	OrderID     uuid.UUID       `json:"orderId"`
	CustomerID  uuid.UUID       `json:"customerId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      string          `json:"status"`
	Items       []OrderItem     `json:"items"`
}

// Key returns the partition key for this event.
func (e OrderCreated) Key() string { return e.OrderID.String() }

// PaymentProcessed announces a completed payment attempt. It is the saga's
// terminal signal; nothing consumes it yet.
type PaymentProcessed struct {
	Envelope

	PaymentID uuid.UUID       `json:"paymentId"`
	OrderID   uuid.UUID       `json:"orderId"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

// Key returns the partition key for this event.
func (e PaymentProcessed) Key() string { return e.OrderID.String() }

// Encode serializes an event payload for the wire.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode event")
	}
	return data, nil
}

// DecodeOrderCreated parses an OrderCreated payload and validates its type tag.
func DecodeOrderCreated(data []byte) (OrderCreated, error) {
	var e OrderCreated
	if err := json.Unmarshal(data, &e); err != nil {
		return OrderCreated{}, errors.Wrap(err, "decode order created")
	}
	if e.EventType != TypeOrderCreated {
		return OrderCreated{}, errors.Errorf("unexpected event type %q", e.EventType)
	}
	return e, nil
}

// DecodePaymentProcessed parses a PaymentProcessed payload and validates its
// type tag.
func DecodePaymentProcessed(data []byte) (PaymentProcessed, error) {
	var e PaymentProcessed
	if err := json.Unmarshal(data, &e); err != nil {
		return PaymentProcessed{}, errors.Wrap(err, "decode payment processed")
	}
	if e.EventType != TypePaymentProcessed {
		return PaymentProcessed{}, errors.Errorf("unexpected event type %q", e.EventType)
	}
	return e, nil
}
