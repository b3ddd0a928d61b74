package domain

import (
	"math"
	"time"
)

// Platform identifies a Tanzanian mobile-money provider.
type Platform string

const (
	PlatformMPesa       Platform = "M-Pesa"
	PlatformTigoPesa    Platform = "Tigo Pesa"
	PlatformAirtelMoney Platform = "Airtel Money"
	PlatformHaloPesa    Platform = "HaloPesa"
	PlatformAzamPesa    Platform = "Azam Pesa"
	PlatformTPesa       Platform = "T-Pesa"
)

// TransactionType is the kind of mobile-money movement.
type TransactionType string

const (
	TypeSend        TransactionType = "send"
	TypeReceive     TransactionType = "receive"
	TypePay         TransactionType = "pay"
	TypeWithdraw    TransactionType = "withdraw"
	TypeDeposit     TransactionType = "deposit"
	TypeBuyAirtime  TransactionType = "buy_airtime"
	TypePayMerchant TransactionType = "pay_merchant"
)

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusBlocked   TransactionStatus = "blocked"
)

// UnknownLabel is the sentinel used wherever an optional metadata field
// is absent. Factor calculators branch on it instead of failing.
const UnknownLabel = "unknown"

// TxMetadata carries the optional context fields the factor calculators
// read. The original data arrived as an open string-keyed map; the named
// fields here cover every key the scoring path actually consumes.
type TxMetadata struct {
	Location       string  `json:"location,omitempty"`
	DeviceID       string  `json:"deviceId,omitempty"`
	NetworkType    string  `json:"networkType,omitempty"`
	SenderPlatform string  `json:"senderPlatform,omitempty"`
	Fee            float64 `json:"fee,omitempty"`
	Reference      string  `json:"reference,omitempty"`
}

// LocationLabel returns the location or the unknown sentinel when absent.
func (m TxMetadata) LocationLabel() string {
	if m.Location == "" {
		return UnknownLabel
	}
	return m.Location
}

// NetworkLabel returns the network type or the unknown sentinel when absent.
func (m TxMetadata) NetworkLabel() string {
	if m.NetworkType == "" {
		return UnknownLabel
	}
	return m.NetworkType
}

// Transaction is an immutable record of one mobile-money movement.
// Amount may be signed; all factor calculations use its absolute value.
type Transaction struct {
	ID             string            `json:"id"`
	Amount         float64           `json:"amount"`
	Platform       Platform          `json:"platform"`
	Type           TransactionType   `json:"type"`
	RecipientID    string            `json:"recipientId,omitempty"`
	RecipientName  string            `json:"recipientName,omitempty"`
	RecipientPhone string            `json:"recipientPhone,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         TransactionStatus `json:"status"`
	Metadata       TxMetadata        `json:"metadata"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// AbsAmount returns the transacted magnitude regardless of sign.
func (t *Transaction) AbsAmount() float64 {
	return math.Abs(t.Amount)
}

// Hour returns the transaction's hour of day (0-23).
func (t *Transaction) Hour() int {
	return t.Timestamp.Hour()
}
