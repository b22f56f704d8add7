package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradeforge/riskmon/internal/domain"
)

// Feed event types sent by the execution engine.
const (
	EventFill  = "fill"
	EventPrice = "price"
)

// FeedEvent is the wire envelope for one feed message. Monetary fields are
// decimal strings; they are never parsed as floats.
type FeedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Amount    string `json:"amount,omitempty"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Fill converts a fill event's payload to a domain fill.
func (e FeedEvent) Fill() (domain.Fill, error) {
	amount, err := decimal.NewFromString(e.Amount)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("engine: fill amount %q: %w", e.Amount, err)
	}
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("engine: fill price %q: %w", e.Price, err)
	}
	return domain.Fill{Amount: amount, Price: price}, nil
}

// PriceValue parses a price event's payload.
func (e FeedEvent) PriceValue() (decimal.Decimal, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("engine: price %q: %w", e.Price, err)
	}
	return price, nil
}

// Control command operations accepted by the execution engine.
const (
	OpAbort = "abort"
	OpAck   = "ack"
	OpError = "error"
)

// ControlCommand is the wire envelope for one control message sent to the
// engine.
type ControlCommand struct {
	Op        string `json:"op"`
	SessionID string `json:"session_id"`
}

// ControlAck is the engine's reply to a control command.
type ControlAck struct {
	Op        string `json:"op"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}
