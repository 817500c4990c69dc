package orders

import (
	"time"

	"github.com/agrichain/agrichain-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// PaymentMethodEscrow is the default payment method carried on new orders.
const PaymentMethodEscrow = "escrow"

// LineItem is one product line on an order. unitPrice and quantity are frozen
// at creation time; the seller is credited unitPrice * quantity on settlement.
type LineItem struct {
	ProductID string          `json:"productId"`
	SellerID  string          `json:"sellerId"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int64           `json:"quantity"`
}

// Subtotal returns unitPrice * quantity for the line.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// Order is the settlement record for one purchase. sellerIds is denormalized
// from the items so seller-side listings can query by array membership.
type Order struct {
	ID                  string            `json:"id"`
	BuyerID             string            `json:"buyerId"`
	Items               []LineItem        `json:"items"`
	SellerIDs           []string          `json:"sellerIds"`
	TotalAmount         decimal.Decimal   `json:"totalAmount"`
	OTP                 string            `json:"otp"`
	Status              enums.OrderStatus `json:"status"`
	PaymentMethod       string            `json:"paymentMethod"`
	NeedsReconciliation bool              `json:"needsReconciliation"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	CompletedAt         *time.Time        `json:"completedAt,omitempty"`
}
