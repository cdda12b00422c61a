package types

type OrderType string

type OrderStatus string

type OrderSource string

type CloseReason string

type PositionStatus string

type TransactionType string

type CommissionTier string

type CommissionStatus string

type KLinePeriod string

type RequestStatus string

type VerificationStatus string

type UserStatus string

type ProductStatus string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCanceled  OrderStatus = "canceled"
)

const (
	OrderSourceUser       OrderSource = "user"
	OrderSourceSettlement OrderSource = "settlement"
)

const (
	CloseReasonNone       CloseReason = ""
	CloseReasonStopProfit CloseReason = "stop_profit"
	CloseReasonStopLoss   CloseReason = "stop_loss"
)

const (
	PositionStatusOpen            PositionStatus = "open"
	PositionStatusClosed          PositionStatus = "closed"
	PositionStatusPartiallyClosed PositionStatus = "partially_closed"
	PositionStatusForcedClosed    PositionStatus = "forced_closed"
)

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdraw   TransactionType = "withdraw"
	TransactionTypeBuy        TransactionType = "buy"
	TransactionTypeSell       TransactionType = "sell"
	TransactionTypeCommission TransactionType = "commission"
	TransactionTypeProfit     TransactionType = "profit"
	TransactionTypeLoss       TransactionType = "loss"
	TransactionTypeFreeze     TransactionType = "freeze"
	TransactionTypeUnfreeze   TransactionType = "unfreeze"
)

const (
	CommissionTierDirect   CommissionTier = "direct"
	CommissionTierIndirect CommissionTier = "indirect"
)

const (
	CommissionStatusCalculated CommissionStatus = "calculated"
	CommissionStatusPaid       CommissionStatus = "paid"
)

const (
	KLinePeriodDay   KLinePeriod = "day"
	KLinePeriodWeek  KLinePeriod = "week"
	KLinePeriodMonth KLinePeriod = "month"
	KLinePeriodYear  KLinePeriod = "year"
)

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

const (
	VerificationStatusUnverified VerificationStatus = "unverified"
	VerificationStatusPending    VerificationStatus = "pending"
	VerificationStatusVerified   VerificationStatus = "verified"
	VerificationStatusRejected   VerificationStatus = "rejected"
)

const (
	UserStatusActive UserStatus = "active"
	UserStatusFrozen UserStatus = "frozen"
	UserStatusBanned UserStatus = "banned"
)

const (
	ProductStatusActive    ProductStatus = "active"
	ProductStatusSuspended ProductStatus = "suspended"
	ProductStatusDelisted  ProductStatus = "delisted"
)
