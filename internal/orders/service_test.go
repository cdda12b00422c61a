package orders

import (
	"errors"
	"testing"

	"invest-platform/internal/ledger"
	"invest-platform/internal/types"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestOrderAmountsBuy(t *testing.T) {
	amount, fee, actual := orderAmounts(d("10"), d("100"), d("0.005"), types.OrderTypeBuy)
	assert.True(t, amount.Equal(d("1000")))
	assert.True(t, fee.Equal(d("5")), "fee at full precision")
	assert.True(t, actual.Equal(d("1005")), "buy debits amount plus fee")
}

func TestOrderAmountsSell(t *testing.T) {
	amount, fee, actual := orderAmounts(d("10"), d("100"), d("0.005"), types.OrderTypeSell)
	assert.True(t, amount.Equal(d("1000")))
	assert.True(t, fee.Equal(d("5")))
	assert.True(t, actual.Equal(d("995")), "sell credits amount minus fee")
}

func TestOrderAmountsNoRounding(t *testing.T) {
	// 3 * 33.335 * 0.0015 must not be rounded before the balance move
	amount, fee, actual := orderAmounts(d("3"), d("33.335"), d("0.0015"), types.OrderTypeBuy)
	assert.True(t, amount.Equal(d("100.005")))
	assert.True(t, fee.Equal(d("0.1500075")))
	assert.True(t, actual.Equal(d("100.1550075")))
	assert.True(t, actual.Equal(amount.Add(fee)))
}

func TestOrderAmountsZeroFeeRate(t *testing.T) {
	amount, fee, actual := orderAmounts(d("2"), d("50"), decimal.Zero, types.OrderTypeSell)
	assert.True(t, amount.Equal(d("100")))
	assert.True(t, fee.IsZero())
	assert.True(t, actual.Equal(amount))
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, isSerializationFailure(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isSerializationFailure(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isSerializationFailure(errors.New("boom")))
	assert.False(t, isSerializationFailure(nil))
}

func TestRetrySerializableBoundedThenConflict(t *testing.T) {
	s := &Service{log: zap.NewNop()}
	calls := 0
	err := s.retrySerializable("place", func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	assert.ErrorIs(t, err, ErrConflict, "exhausted retries surface as a retryable conflict")
	assert.Equal(t, maxTxRetries, calls)
}

func TestRetrySerializableStopsOnSuccess(t *testing.T) {
	s := &Service{log: zap.NewNop()}
	calls := 0
	err := s.retrySerializable("place", func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

// Two buys race for a balance that covers only one. The loser's tx aborts
// with a serialization failure; on retry the winner has already spent the
// balance, so the loser must end with an insufficient-balance error after
// exactly one more attempt, never a second debit.
func TestRetrySerializableConcurrentDebitLoser(t *testing.T) {
	s := &Service{log: zap.NewNop()}
	calls := 0
	err := s.retrySerializable("place", func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return ledger.ErrInsufficientBalance
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, 2, calls, "domain errors are not retried")
}
