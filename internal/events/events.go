package events

import (
	"context"
	"time"
)

const (
	TypeOrderExecuted   = "order.executed"
	TypePositionClosed  = "position.closed"
	TypePriceUpdated    = "price.updated"
	TypeSettlementDone  = "settlement.completed"
	TypeDepositAudited  = "deposit.audited"
	TypeWithdrawAudited = "withdraw.audited"
)

type Event struct {
	Type string         `json:"type"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data"`
}

// Publisher delivers domain events to the outside. Implementations must be
// safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}
