/**
 * @description
 * This file contains the HTTP handlers for the creator earnings ledger: balances,
 * income listings, withdrawal requests, and settlement summaries. Withdrawal
 * completion is a server-to-server operation driven by the payout processor and lives
 * on the internal surface.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: Service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/fanvault/payment-service/internal/app"
	"github.com/fanvault/payment-service/internal/domain"
	"github.com/fanvault/payment-service/internal/store"
)

// WithdrawableBalanceHandler returns the authenticated creator's withdrawable balance.
func (h *PaymentHandlers) WithdrawableBalanceHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	balance, err := h.ledger.WithdrawableBalance(r.Context(), creatorID)
	if err != nil {
		log.Printf("level=error component=api endpoint=withdrawable_balance creator_id=%s err=%v", creatorID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch balance")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"withdrawable_balance": balance})
}

// ListIncomeHandler returns a page of the authenticated creator's earnings lines.
func (h *PaymentHandlers) ListIncomeHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	limit, offset := pagination(r)
	incomes, err := h.ledger.ListIncome(r.Context(), creatorID, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		if errors.Is(err, app.ErrValidation) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=list_income creator_id=%s err=%v", creatorID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch earnings")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"incomes": incomes})
}

// RequestWithdrawalHandler moves one withdrawable income record into processing.
func (h *PaymentHandlers) RequestWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	incomeID, err := parseUUIDParam(r, "incomeID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid income id")
		return
	}

	var req domain.WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	income, err := h.ledger.RequestWithdrawal(r.Context(), creatorID, incomeID, &req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=request_withdrawal outcome=failed income_id=%s creator_id=%s err=%v", incomeID, creatorID, err)
		switch {
		case errors.Is(err, store.ErrIncomeNotFound):
			h.writeError(w, http.StatusNotFound, "Income record not found")
		case errors.Is(err, app.ErrValidation):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrInvalidState):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "Failed to request withdrawal")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, income)
}

// CreateWithdrawalBatchHandler sweeps the creator's full withdrawable balance into one
// payout batch.
func (h *PaymentHandlers) CreateWithdrawalBatchHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	batch, err := h.ledger.CreateWithdrawalBatch(r.Context(), creatorID, &req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_withdrawal_batch outcome=failed creator_id=%s err=%v", creatorID, err)
		switch {
		case errors.Is(err, app.ErrValidation):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrBelowWithdrawalMinimum):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, app.ErrInvalidState):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "Failed to create withdrawal batch")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, batch)
}

// SettlementSummariesHandler returns the creator's per-month earnings aggregates.
func (h *PaymentHandlers) SettlementSummariesHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	months, _ := strconv.Atoi(r.URL.Query().Get("months"))
	summaries, err := h.ledger.SettlementSummaries(r.Context(), creatorID, months)
	if err != nil {
		log.Printf("level=error component=api endpoint=settlement_summaries creator_id=%s err=%v", creatorID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch settlement summaries")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"summaries": summaries})
}

// CompleteWithdrawalBatchHandler finalizes a payout batch after the payout processor
// confirms the transfer. Internal surface only.
func (h *PaymentHandlers) CompleteWithdrawalBatchHandler(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseUUIDParam(r, "batchID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid batch id")
		return
	}

	count, err := h.ledger.CompleteWithdrawalBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, app.ErrInvalidState) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=complete_withdrawal_batch batch_id=%s err=%v", batchID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to complete withdrawal batch")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"batch_id": batchID, "completed": count})
}

// CompleteWithdrawalHandler finalizes one income record of a payout batch. Internal
// surface only.
func (h *PaymentHandlers) CompleteWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	incomeID, err := parseUUIDParam(r, "incomeID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid income id")
		return
	}

	var req struct {
		BatchID string `json:"batch_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	batchID, err := uuid.Parse(req.BatchID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid batch id")
		return
	}

	if err := h.ledger.CompleteWithdrawal(r.Context(), incomeID, batchID); err != nil {
		if errors.Is(err, app.ErrInvalidState) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=complete_withdrawal income_id=%s err=%v", incomeID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to complete withdrawal")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}
