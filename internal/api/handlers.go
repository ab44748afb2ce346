/**
 * @description
 * This file contains the HTTP handlers for the payment service's order endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fanvault/payment-service/internal/app"
	"github.com/fanvault/payment-service/internal/domain"
	"github.com/fanvault/payment-service/internal/gateway"
	"github.com/fanvault/payment-service/internal/store"
)

// PaymentHandlers holds the application services that handlers will use.
type PaymentHandlers struct {
	service *app.Service
	ledger  *app.Ledger
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service, ledger *app.Ledger) *PaymentHandlers {
	return &PaymentHandlers{service: service, ledger: ledger}
}

// createOrderResponse returns the pending order alongside the provider-specific
// parameters the client needs to complete the payment.
type createOrderResponse struct {
	Order         *domain.Order         `json:"order"`
	PaymentParams gateway.PaymentParams `json:"payment_params"`
}

// CreateOrderHandler handles requests to create a new payment order.
func (h *PaymentHandlers) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_order outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, params, err := h.service.CreateOrder(r.Context(), userID, &req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_order outcome=failed user_id=%s err=%v", userID, err)
		switch {
		case errors.Is(err, app.ErrValidation), errors.Is(err, app.ErrUnknownPlan):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			h.writeError(w, http.StatusServiceUnavailable, "Payment method temporarily unavailable")
		default:
			h.writeError(w, http.StatusInternalServerError, "Failed to create order")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, createOrderResponse{Order: order, PaymentParams: params})
}

// GetOrderHandler returns one of the authenticated user's orders.
func (h *PaymentHandlers) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	orderNo := chi.URLParam(r, "orderNo")
	order, err := h.service.GetOrder(r.Context(), userID, orderNo)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_order order_no=%s err=%v", orderNo, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// ListOrdersHandler returns a page of the authenticated user's orders.
func (h *PaymentHandlers) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	limit, offset := pagination(r)
	orders, err := h.service.ListOrders(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_orders user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// RefundOrderHandler handles refund requests against a paid order.
func (h *PaymentHandlers) RefundOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.OrderNo = chi.URLParam(r, "orderNo")

	order, err := h.service.RequestRefund(r.Context(), userID, &req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=refund_order outcome=failed order_no=%s user_id=%s err=%v", req.OrderNo, userID, err)
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "Order not found")
		case errors.Is(err, app.ErrInvalidState):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "Failed to refund order")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// CurrentSubscriptionHandler returns the authenticated user's subscription record.
func (h *PaymentHandlers) CurrentSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	sub, err := h.service.CurrentSubscription(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			h.writeError(w, http.StatusNotFound, "No subscription found")
			return
		}
		log.Printf("level=error component=api endpoint=current_subscription user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch subscription")
		return
	}

	h.writeJSON(w, http.StatusOK, sub)
}

// PaymentCallbackHandler receives asynchronous provider notifications. The response
// body is whatever acknowledgement shape the provider expects; providers retry on
// non-2xx statuses where their protocol supports it.
func (h *PaymentHandlers) PaymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	ack, err := h.service.HandleCallback(r.Context(), method, raw, r.Header)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, gateway.ErrUnknownMethod):
			http.Error(w, "Unknown payment method", http.StatusNotFound)
			return
		case errors.Is(err, gateway.ErrInvalidSignature):
			status = http.StatusUnauthorized
		case errors.Is(err, store.ErrOrderNotFound):
			status = http.StatusNotFound
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			status = http.StatusServiceUnavailable
		}
		writeAck(w, status, ack)
		return
	}

	writeAck(w, http.StatusOK, ack)
}

func writeAck(w http.ResponseWriter, status int, ack gateway.Ack) {
	if ack.ContentType != "" {
		w.Header().Set("Content-Type", ack.ContentType)
	}
	w.WriteHeader(status)
	w.Write([]byte(ack.Body))
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode json response\" err=%v", err)
	}
}

func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
