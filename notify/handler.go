package notify

import (
	"context"
	"errors"
	"net/http"

	"github.com/abuimran/farmgate/bind"
	"github.com/abuimran/farmgate/logging"
	"github.com/abuimran/farmgate/wrapper"
)

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, message string) error
}

type notifyRequest struct {
	Message string `json:"message" validate:"required,max=4096"`
}

// Handler serves POST /api/notifications/telegram. It must run behind
// wrapper.New.
func Handler(sender Sender, log *logging.Logger) http.HandlerFunc {
	if log == nil {
		log = logging.Nop()
	}
	return func(_ http.ResponseWriter, r *http.Request) {
		var req notifyRequest
		if !bind.JSON(r, &req) {
			return
		}

		err := sender.Send(r.Context(), req.Message)
		var apiErr *APIError
		switch {
		case err == nil:
			wrapper.SetResponse(r, http.StatusOK, map[string]bool{"success": true})
		case errors.Is(err, ErrNotConfigured):
			log.Warn(logging.SourceTelegram, "Telegram credentials not found. Notification skipped.")
			wrapper.SetError(r, wrapper.ErrServiceUnavailable.With("Telegram notifications are not configured"))
		case errors.As(err, &apiErr):
			log.Error(logging.SourceTelegram, "Telegram API Error: "+apiErr.Error())
			wrapper.SetError(r, wrapper.ErrBadGateway.With("Telegram rejected the notification"))
		default:
			log.Error(logging.SourceTelegram, "Failed to send Telegram notification: "+err.Error())
			wrapper.SetError(r, wrapper.ErrBadGateway.With("Failed to send notification"))
		}
	}
}
