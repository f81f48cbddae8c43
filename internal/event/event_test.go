package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	before := time.Now().UTC()
	env := NewEnvelope(TypeOrderCreated)

	assert.NotEqual(t, uuid.Nil, env.EventID)
	assert.Equal(t, TypeOrderCreated, env.EventType)
	assert.False(t, env.Timestamp.Before(before))

	// Every envelope gets a fresh id.
	assert.NotEqual(t, env.EventID, NewEnvelope(TypeOrderCreated).EventID)
}

func TestOrderCreatedRoundTrip(t *testing.T) {
	orderID := uuid.New()
	evt := OrderCreated{
		Envelope:    NewEnvelope(TypeOrderCreated),
		OrderID:     orderID,
		CustomerID:  uuid.New(),
		TotalAmount: decimal.RequireFromString("39.98"),
		Status:      "PENDING",
		Items: []OrderItem{
			{ProductID: uuid.New(), Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
		},
	}

	data, err := Encode(evt)
	require.NoError(t, err)

	got, err := DecodeOrderCreated(data)
	require.NoError(t, err)

	assert.Equal(t, evt.EventID, got.EventID)
	assert.Equal(t, orderID, got.OrderID)
	assert.True(t, got.TotalAmount.Equal(evt.TotalAmount), "total: got %s", got.TotalAmount)
	assert.Equal(t, "PENDING", got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, orderID.String(), got.Key())
}

func TestDecodeOrderCreated_WrongType(t *testing.T) {
	evt := PaymentProcessed{
		Envelope:  NewEnvelope(TypePaymentProcessed),
		PaymentID: uuid.New(),
		OrderID:   uuid.New(),
		Amount:    decimal.RequireFromString("10"),
		Status:    "COMPLETED",
	}
	data, err := Encode(evt)
	require.NoError(t, err)

	_, err = DecodeOrderCreated(data)
	require.Error(t, err)
}

func TestDecodeOrderCreated_Malformed(t *testing.T) {
	_, err := DecodeOrderCreated([]byte(`{not json`))
	require.Error(t, err)
}
