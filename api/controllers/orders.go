package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/agrichain/agrichain-backend/api/responses"
	"github.com/agrichain/agrichain-backend/api/validators"
	"github.com/agrichain/agrichain-backend/internal/orders"
	"github.com/agrichain/agrichain-backend/internal/settlement"
	"github.com/agrichain/agrichain-backend/pkg/enums"
	pkgerrors "github.com/agrichain/agrichain-backend/pkg/errors"
	"github.com/agrichain/agrichain-backend/pkg/logger"
)

// orderView is the order as the API exposes it. The confirmation code is
// returned once by create and never again.
type orderView struct {
	ID                  string            `json:"id"`
	BuyerID             string            `json:"buyerId"`
	Items               []orders.LineItem `json:"items"`
	SellerIDs           []string          `json:"sellerIds"`
	TotalAmount         decimal.Decimal   `json:"totalAmount"`
	Status              string            `json:"status"`
	PaymentMethod       string            `json:"paymentMethod"`
	NeedsReconciliation bool              `json:"needsReconciliation"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	CompletedAt         *time.Time        `json:"completedAt,omitempty"`
}

func toOrderView(order orders.Order) orderView {
	return orderView{
		ID:                  order.ID,
		BuyerID:             order.BuyerID,
		Items:               order.Items,
		SellerIDs:           order.SellerIDs,
		TotalAmount:         order.TotalAmount,
		Status:              string(order.Status),
		PaymentMethod:       order.PaymentMethod,
		NeedsReconciliation: order.NeedsReconciliation,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
		CompletedAt:         order.CompletedAt,
	}
}

func toOrderViews(list []orders.Order) []orderView {
	views := make([]orderView, 0, len(list))
	for _, order := range list {
		views = append(views, toOrderView(order))
	}
	return views
}

// CreateOrder handles POST /api/v1/orders.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input orders.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListOrders handles GET /api/v1/orders/{partyId}?role=buyer|seller&status=...
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partyID := strings.TrimSpace(chi.URLParam(r, "partyId"))
		role, err := enums.ParsePartyRole(strings.TrimSpace(r.URL.Query().Get("role")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or seller"))
			return
		}

		var statusFilter enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			statusFilter, err = enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status filter"))
				return
			}
		}

		list, err := svc.ListForParty(r.Context(), partyID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if statusFilter != "" {
			filtered := make([]orders.Order, 0, len(list))
			for _, order := range list {
				if order.Status == statusFilter {
					filtered = append(filtered, order)
				}
			}
			list = filtered
		}

		responses.WriteSuccess(w, map[string]any{"orders": toOrderViews(list)})
	}
}

type verifyOTPRequest struct {
	OTP     string `json:"otp" validate:"required"`
	BuyerID string `json:"buyerId" validate:"required"`
}

// VerifyOTP handles POST /api/v1/orders/{orderId}/verify-otp.
func VerifyOTP(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))

		var body verifyOTPRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Verify(r.Context(), orderID, body.OTP, body.BuyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type cancelOrderRequest struct {
	BuyerID string `json:"buyerId" validate:"required"`
}

// CancelOrder handles POST /api/v1/orders/{orderId}/cancel.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))

		var body cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), orderID, body.BuyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toOrderView(order))
	}
}
