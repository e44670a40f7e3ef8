package handlers

import (
	"net/http"

	"github.com/nkiryanov/courier/internal/handlers/actorctx"
	"github.com/nkiryanov/courier/internal/handlers/render"
	"github.com/nkiryanov/courier/internal/logger"
)

func handleListMessages(chatService chatService, l logger.Logger) http.Handler {
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

		messages, err := chatService.ListMessages(r.Context(), id, actor.Ref)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, messages)
	})
}

func handleSendMessage(chatService chatService, l logger.Logger) http.Handler {
	type request struct {
		Text string `json:"text" validate:"required,notblank"`
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

		message, err := chatService.SendMessage(r.Context(), id, actor.Ref, req.Text)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, message, http.StatusCreated)
	})
}
