package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrichain/agrichain-backend/internal/listings"
	"github.com/agrichain/agrichain-backend/internal/storage"
	"github.com/agrichain/agrichain-backend/pkg/enums"
	pkgerrors "github.com/agrichain/agrichain-backend/pkg/errors"
	"github.com/agrichain/agrichain-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateInput is the order creation request after body validation.
type CreateInput struct {
	BuyerID       string     `json:"buyerId" validate:"required"`
	Items         []LineItem `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string     `json:"paymentMethod"`
}

// CreateResult carries the new order's id and its confirmation code. The code
// is relayed to the buyer out-of-band; it is never readable through the API
// afterwards.
type CreateResult struct {
	OrderID     string            `json:"orderId"`
	OTP         string            `json:"otp"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Status      enums.OrderStatus `json:"status"`
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (CreateResult, error)
	ListForParty(ctx context.Context, partyID string, role enums.PartyRole) ([]Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	// Cancel lets the order's buyer withdraw before the OTP is confirmed.
	Cancel(ctx context.Context, orderID, buyerID string) (Order, error)
}

type service struct {
	repo     Repo
	listings listings.Service
	logg     *logger.Logger
	now      func() time.Time
	newOTP   func() (string, error)
}

func NewService(repo Repo, listings listings.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if listings == nil {
		return nil, fmt.Errorf("listings service is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:     repo,
		listings: listings,
		logg:     logg,
		now:      time.Now,
		newOTP:   generateOTP,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (CreateResult, error) {
	if err := validateCreateInput(input); err != nil {
		return CreateResult{}, err
	}

	otp, err := s.newOTP()
	if err != nil {
		return CreateResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue confirmation code")
	}

	now := s.now().UTC()
	order := Order{
		ID:            uuid.NewString(),
		BuyerID:       input.BuyerID,
		Items:         input.Items,
		SellerIDs:     distinctSellerIDs(input.Items),
		TotalAmount:   totalAmount(input.Items),
		OTP:           otp,
		Status:        enums.OrderStatusPendingConfirmation,
		PaymentMethod: input.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = PaymentMethodEscrow
	}

	if err := s.repo.Insert(ctx, order); err != nil {
		return CreateResult{}, err
	}

	logCtx := s.logg.WithOrderID(s.logg.WithBuyerID(ctx, order.BuyerID), order.ID)
	s.logg.Info(s.logg.WithField(logCtx, "total_amount", order.TotalAmount.String()), "order created")

	// Purchased stock comes off the marketplace. The order stands even when a
	// removal fails; sellers re-list manually in that case.
	for _, item := range order.Items {
		if err := s.listings.Remove(ctx, item.ProductID); err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			s.logg.Error(s.logg.WithField(logCtx, "product_id", item.ProductID), "listing removal failed after order create", err)
		}
	}

	return CreateResult{
		OrderID:     order.ID,
		OTP:         order.OTP,
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
	}, nil
}

func (s *service) ListForParty(ctx context.Context, partyID string, role enums.PartyRole) ([]Order, error) {
	if partyID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "party id is required")
	}
	switch role {
	case enums.PartyRoleBuyer:
		return s.repo.ListByBuyer(ctx, partyID)
	case enums.PartyRoleSeller:
		return s.repo.ListBySeller(ctx, partyID)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or seller")
	}
}

func (s *service) Get(ctx context.Context, orderID string) (Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return Order{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *service) Cancel(ctx context.Context, orderID, buyerID string) (Order, error) {
	if buyerID == "" {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.BuyerID != buyerID {
		return Order{}, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to a different buyer")
	}

	err = s.repo.TransitionStatus(ctx, orderID, enums.OrderStatusPendingConfirmation, enums.OrderStatusCancelled, nil)
	if errors.Is(err, storage.ErrConditionFailed) {
		// The pre-read status may be stale when a concurrent confirmation won
		// the race; only report it when it already explains the conflict.
		msg := "order is no longer awaiting confirmation"
		if order.Status.IsTerminal() {
			msg = fmt.Sprintf("order is %s and can no longer be cancelled", order.Status)
		}
		return Order{}, pkgerrors.New(pkgerrors.CodeStateConflict, msg).
			WithDetails(map[string]any{"status": order.Status})
	}
	if errors.Is(err, storage.ErrNotFound) {
		return Order{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return Order{}, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, orderID), "order cancelled by buyer")
	return s.Get(ctx, orderID)
}

func validateCreateInput(input CreateInput) error {
	if input.BuyerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	for i, item := range input.Items {
		if item.ProductID == "" || item.SellerID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d is missing product or seller id", i))
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d quantity must be positive", i))
		}
		if item.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d unit price must not be negative", i))
		}
	}
	return nil
}

func totalAmount(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func distinctSellerIDs(items []LineItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		ids = append(ids, item.SellerID)
	}
	return ids
}
