package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a seller's settled funds. One wallet per seller, created
// lazily on the first credit.
type Wallet struct {
	SellerID  string          `json:"sellerId"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
