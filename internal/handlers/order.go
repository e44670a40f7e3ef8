package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/handlers/actorctx"
	"github.com/nkiryanov/courier/internal/handlers/render"
	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/service/order"
)

type effectResponse struct {
	ID        uuid.UUID           `json:"id"`
	Kind      models.EffectKind   `json:"kind"`
	Status    models.EffectStatus `json:"status"`
	Attempts  int                 `json:"attempts"`
	LastError string              `json:"last_error,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func newEffectsResponse(effects []models.Effect) []effectResponse {
	res := make([]effectResponse, 0, len(effects))
	for _, e := range effects {
		res = append(res, effectResponse{
			ID:        e.ID,
			Kind:      e.Kind,
			Status:    e.Status,
			Attempts:  e.Attempts,
			LastError: e.LastError,
			UpdatedAt: e.UpdatedAt,
		})
	}
	return res
}

// orderID reads the order id path value. Writes bad request if it is not uuid
func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Invalid order id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// queryLimit reads optional 'limit' query parameter
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := cast.ToIntE(raw)
	if err != nil || limit < 0 {
		return 0, apperrors.ErrBadRequest
	}
	return limit, nil
}

// queryList reads repeated or comma separated query parameter values
func queryList(r *http.Request, key string) []string {
	var values []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return values
}

// canView tells whether the actor may read the order.
// Drivers see pending orders nobody took, so they can pick one
func canView(actor models.Actor, o models.Order) bool {
	switch {
	case actor.Role == models.RoleOperator:
		return true
	case o.IsParticipant(actor.Ref):
		return true
	default:
		return actor.Role == models.RoleDriver && o.Status == models.OrderStatusPending && o.DriverRef == nil
	}
}

func handleCreateOrder(orderService orderService, l logger.Logger) http.Handler {
	type request struct {
		Price   decimal.Decimal `json:"price" validate:"gte=0"`
		Pickup  string          `json:"pickup" validate:"required,notblank,max=512"`
		Dropoff string          `json:"dropoff" validate:"required,notblank,max=512"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		o, err := orderService.Create(r.Context(), order.CreateCommand{
			CustomerRef: actor.Ref,
			Price:       req.Price,
			Pickup:      strings.TrimSpace(req.Pickup),
			Dropoff:     strings.TrimSpace(req.Dropoff),
		})
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, o, http.StatusCreated)
	})
}

func handleListOrders(orderService orderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		var statuses []models.OrderStatus
		for _, raw := range queryList(r, "status") {
			s, ok := models.ParseStatus(raw)
			if !ok {
				render.ServiceError(w, "Unknown order status: "+raw, http.StatusBadRequest)
				return
			}
			statuses = append(statuses, s)
		}

		orders, err := orderService.ListByActor(r.Context(), actor.Ref, statuses)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, orders)
	})
}

func handleListAvailable(orderService orderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryLimit(r)
		if err != nil {
			render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
			return
		}

		orders, err := orderService.ListAvailable(r.Context(), limit)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, orders)
	})
}

func handleGetOrder(orderService orderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorctx.FromContext(r.Context())
		id, ok := orderID(w, r)
		if !ok {
			return
		}

		o, err := orderService.Get(r.Context(), id)
		if err != nil {
			renderError(w, err, l)
			return
		}
		if !canView(actor, o) {
			renderError(w, apperrors.ErrNotParticipant, l)
			return
		}

		render.JSON(w, o)
	})
}

func handleOrderHistory(orderService orderService, l logger.Logger) http.Handler {
	type event struct {
		From      models.OrderStatus `json:"from"`
		To        models.OrderStatus `json:"to"`
		ActorRef  string             `json:"actor_ref"`
		CreatedAt time.Time          `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorctx.FromContext(r.Context())
		id, ok := orderID(w, r)
		if !ok {
			return
		}

		o, err := orderService.Get(r.Context(), id)
		if err != nil {
			renderError(w, err, l)
			return
		}
		if actor.Role != models.RoleOperator && !o.IsParticipant(actor.Ref) {
			renderError(w, apperrors.ErrNotParticipant, l)
			return
		}

		events, err := orderService.History(r.Context(), id)
		if err != nil {
			renderError(w, err, l)
			return
		}

		res := make([]event, 0, len(events))
		for _, e := range events {
			res = append(res, event{From: e.FromStatus, To: e.ToStatus, ActorRef: e.ActorRef, CreatedAt: e.CreatedAt})
		}
		render.JSON(w, res)
	})
}

func handleTransition(orderService orderService, l logger.Logger) http.Handler {
	type request struct {
		Target string `json:"target" validate:"required,notblank"`
	}

	type response struct {
		Order    models.Order       `json:"order"`
		From     models.OrderStatus `json:"from"`
		Effects  []effectResponse   `json:"effects"`
		Warnings []order.Warning    `json:"warnings"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		id, ok := orderID(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := orderService.RequestTransition(r.Context(), id, actor, req.Target)
		if err != nil {
			renderError(w, err, l)
			return
		}

		warnings := result.Warnings
		if warnings == nil {
			warnings = []order.Warning{}
		}
		render.JSON(w, response{
			Order:    result.Order,
			From:     result.From,
			Effects:  newEffectsResponse(result.Effects),
			Warnings: warnings,
		})
	})
}

func handleReplayEffects(orderService orderService, l logger.Logger) http.Handler {
	type response struct {
		Order    models.Order     `json:"order"`
		Effects  []effectResponse `json:"effects"`
		Warnings []order.Warning  `json:"warnings"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := orderID(w, r)
		if !ok {
			return
		}

		result, err := orderService.ReplayEffects(r.Context(), id)
		if err != nil {
			renderError(w, err, l)
			return
		}

		warnings := result.Warnings
		if warnings == nil {
			warnings = []order.Warning{}
		}
		render.JSON(w, response{
			Order:    result.Order,
			Effects:  newEffectsResponse(result.Effects),
			Warnings: warnings,
		})
	})
}
