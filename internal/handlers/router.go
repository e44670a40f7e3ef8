package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/courier/internal/handlers/middleware"
	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/service/ledger"
	"github.com/nkiryanov/courier/internal/service/notify"
	"github.com/nkiryanov/courier/internal/service/order"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// Services the router exposes over http
type Services struct {
	Tokens  tokenParser
	Orders  orderService
	Wallets walletService
	Chat    chatService
	Events  eventSource
}

func NewRouter(s Services, logger logger.Logger) http.Handler {
	operator := middleware.RequireRole(models.RoleOperator)
	customer := middleware.RequireRole(models.RoleCustomer)
	driver := middleware.RequireRole(models.RoleDriver, models.RoleOperator)

	api := http.NewServeMux()

	api.Handle("POST /orders", customer(handleCreateOrder(s.Orders, logger)))
	api.Handle("GET /orders", handleListOrders(s.Orders, logger))
	api.Handle("GET /orders/available", driver(handleListAvailable(s.Orders, logger)))
	api.Handle("GET /orders/{id}", handleGetOrder(s.Orders, logger))
	api.Handle("GET /orders/{id}/history", handleOrderHistory(s.Orders, logger))
	api.Handle("POST /orders/{id}/transitions", handleTransition(s.Orders, logger))
	api.Handle("POST /orders/{id}/effects/replay", operator(handleReplayEffects(s.Orders, logger)))
	api.Handle("GET /orders/{id}/messages", handleListMessages(s.Chat, logger))
	api.Handle("POST /orders/{id}/messages", handleSendMessage(s.Chat, logger))

	api.Handle("GET /wallet", handleGetWallet(s.Wallets, logger))
	api.Handle("GET /wallet/transactions", handleListTransactions(s.Wallets, logger))
	api.Handle("POST /wallets/{owner}/credit", operator(handleCredit(s.Wallets, logger)))

	api.Handle("GET /events", handleEvents(s.Events, logger))

	root := http.NewServeMux()
	root.Handle("GET /health", handleHealth())
	root.Handle("/api/", http.StripPrefix("/api", middleware.AuthMiddleware(s.Tokens)(api)))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type tokenParser interface {
	// Has to return error if token is invalid or expired
	Parse(access string) (models.Actor, error)
}

type orderService interface {
	Create(ctx context.Context, cmd order.CreateCommand) (models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (models.Order, error)
	ListByActor(ctx context.Context, actorRef string, statuses []models.OrderStatus) ([]models.Order, error)
	ListAvailable(ctx context.Context, limit int) ([]models.Order, error)
	History(ctx context.Context, id uuid.UUID) ([]models.OrderEvent, error)

	// Has to return apperrors.ErrInvalidTransition for illegal edges
	// and apperrors.ErrConcurrentModification if another request won the race
	RequestTransition(ctx context.Context, orderID uuid.UUID, actor models.Actor, target string) (order.TransitionResult, error)
	ReplayEffects(ctx context.Context, orderID uuid.UUID) (order.ReplayResult, error)
}

type walletService interface {
	GetWallet(ctx context.Context, ownerRef string) (models.Wallet, error)
	ListTransactions(ctx context.Context, ownerRef string, types []string, limit int) ([]models.Transaction, error)
	Credit(ctx context.Context, ownerRef string, amount decimal.Decimal, description string) (ledger.PostResult, error)
}

type chatService interface {
	SendMessage(ctx context.Context, orderID uuid.UUID, senderRef string, text string) (models.Message, error)
	ListMessages(ctx context.Context, orderID uuid.UUID, actorRef string) ([]models.Message, error)
}

type eventSource interface {
	Subscribe(actorRef string) *notify.Subscription
}
