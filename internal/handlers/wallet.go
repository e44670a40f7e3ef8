package handlers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/courier/internal/handlers/actorctx"
	"github.com/nkiryanov/courier/internal/handlers/render"
	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
)

var transactionTypes = map[string]struct{}{
	models.TransactionTypeCredit:   {},
	models.TransactionTypePayment:  {},
	models.TransactionTypeEarnings: {},
}

func handleGetWallet(walletService walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		wallet, err := walletService.GetWallet(r.Context(), actor.Ref)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, wallet)
	})
}

func handleListTransactions(walletService walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		types := queryList(r, "type")
		for _, t := range types {
			if _, ok := transactionTypes[t]; !ok {
				render.ServiceError(w, "Unknown transaction type: "+t, http.StatusBadRequest)
				return
			}
		}

		limit, err := queryLimit(r)
		if err != nil {
			render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
			return
		}

		transactions, err := walletService.ListTransactions(r.Context(), actor.Ref, types, limit)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, transactions)
	})
}

func handleCredit(walletService walletService, l logger.Logger) http.Handler {
	type request struct {
		Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
		Description string          `json:"description" validate:"max=255"`
	}

	type response struct {
		Wallet      models.Wallet      `json:"wallet"`
		Transaction models.Transaction `json:"transaction"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.PathValue("owner"))
		if owner == "" {
			render.ServiceError(w, "Wallet owner is required", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := walletService.Credit(r.Context(), owner, req.Amount, req.Description)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, response{Wallet: result.Wallet, Transaction: result.Transaction}, http.StatusCreated)
	})
}
