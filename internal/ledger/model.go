package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies accounts by their role on the platform.
type AccountType string

const (
	AccountTypeMerchant        AccountType = "merchant"
	AccountTypeGateway         AccountType = "gateway"
	AccountTypeEscrow          AccountType = "escrow"
	AccountTypePlatformRevenue AccountType = "platform_revenue"
)

// Direction is the side of a double-entry posting.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// Opposite returns the mirrored direction, used when building reversals.
func (d Direction) Opposite() Direction {
	if d == Debit {
		return Credit
	}
	return Debit
}

// Category is the accounting classification of an account.
type Category string

const (
	CategoryAsset     Category = "asset"
	CategoryLiability Category = "liability"
	CategoryRevenue   Category = "revenue"
	CategoryExpense   Category = "expense"
	CategoryEquity    Category = "equity"
)

// AccountStatus tracks whether an account may receive postings.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
	AccountClosed   AccountStatus = "closed"
)

// Well-known chart-of-accounts codes used by the settlement flow. The chart
// itself is provisioned externally; these are the platform-side anchors.
const (
	EscrowAccountCode            = "escrow:main"
	SettlementPayableAccountCode = "settlement:payable"
	PlatformRevenueAccountCode   = "revenue:platform"
	GatewayReceivableAccountCode = "gateway:receivable"
)

// Account is one account in the chart of accounts. Accounts are created
// during chart provisioning and are never deleted, only closed.
type Account struct {
	Code          string
	Type          AccountType
	NormalBalance Direction
	Category      Category
	Status        AccountStatus
	CreatedAt     time.Time
}

// TransactionStatus tracks a transaction through its lifecycle.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusPosted   TransactionStatus = "posted"
	StatusReversed TransactionStatus = "reversed"
	StatusFailed   TransactionStatus = "failed"
)

// Entry is one leg of a balanced transaction. Entries are immutable: there
// is no update or delete path, corrections are new reversing entries.
type Entry struct {
	ID            string
	TransactionID string
	AccountCode   string
	Direction     Direction
	Amount        decimal.Decimal
	Currency      string
}

// Transaction groups the entries of one balanced posting.
type Transaction struct {
	ID             string
	Reference      string
	Tenant         string
	IdempotencyKey string
	EventType      string
	Status         TransactionStatus
	EffectiveDate  time.Time
	ReversesID     string
	ReversedByID   string
	ReversalReason string
	PayloadHash    string
	Entries        []Entry
	CreatedAt      time.Time
}

// TotalDebits sums the debit legs of the transaction.
func (t Transaction) TotalDebits() decimal.Decimal {
	total := decimal.Zero
	for _, e := range t.Entries {
		if e.Direction == Debit {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// Balance is the derived position of an account at a point in time.
type Balance struct {
	AccountCode string
	Amount      decimal.Decimal
	AsOf        time.Time
}

// AccountBalance is one line of a trial balance report.
type AccountBalance struct {
	AccountCode   string
	NormalBalance Direction
	Amount        decimal.Decimal
}
