package blobcast

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aratasato/blobcast/pkg/blobevent"
)

func (app *App) setupRoute() {
	app.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, http.StatusOK, http.StatusText(http.StatusOK))
	})
	sub := app.router.NewRoute().Subrouter()
	sub.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if app.token != "" && r.URL.Query().Get("token") != app.token {
				slog.WarnContext(r.Context(), "webhook token mismatch, returning 404")
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, http.StatusText(http.StatusNotFound))
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	sub.HandleFunc("/", app.handleWebhook).Methods(http.MethodPost)
}

func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app.router.ServeHTTP(w, r)
}

// handleWebhook accepts one push delivery: a JSON array of notifications (or
// a single notification object). Subscription validation handshakes are
// answered inline. Any forward failure returns 500 so the push service
// applies its own redelivery policy.
func (app *App) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if CorrelationID(ctx) == "-" {
		ctx = WithCorrelationID(ctx, newCorrelationID())
	}
	aegEventType := r.Header.Get("aeg-event-type")
	slog.InfoContext(ctx, "received webhook request",
		"method", coalesce(r.Method, "-"),
		"uri", coalesce(r.URL.Path, "-"),
		"correlation_id", CorrelationID(ctx),
		"aeg_event_type", coalesce(aegEventType, "-"),
		"aeg_subscription_name", coalesce(r.Header.Get("aeg-subscription-name"), "-"),
		"aeg_delivery_count", coalesce(r.Header.Get("aeg-delivery-count"), "-"),
	)
	defer r.Body.Close()
	if aegEventType == "" {
		slog.WarnContext(ctx, "missing aeg-event-type header, returning 404")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, http.StatusText(http.StatusNotFound))
		return
	}
	notifications, err := decodeNotifications(r.Body)
	if err != nil {
		slog.WarnContext(ctx, "failed to decode request body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, http.StatusText(http.StatusBadRequest))
		return
	}
	var hasErr bool
	for _, n := range notifications {
		if n != nil && n.EventType == blobevent.EventTypeSubscriptionValidation {
			app.handleValidation(w, r.WithContext(ctx), n)
			return
		}
		if err := app.forwarder.Forward(ctx, n); err != nil {
			slog.ErrorContext(ctx, "forward failed", "error", err, "retryable", IsRetryable(err))
			hasErr = true
		}
	}
	if hasErr {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, http.StatusText(http.StatusInternalServerError))
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, http.StatusText(http.StatusOK))
}

// handleValidation answers the endpoint validation handshake the push
// service performs when a subscription is created.
func (app *App) handleValidation(w http.ResponseWriter, r *http.Request, n *blobevent.Notification) {
	ctx := r.Context()
	var data blobevent.ValidationData
	if err := json.Unmarshal(n.Data, &data); err != nil || data.ValidationCode == "" {
		slog.WarnContext(ctx, "invalid subscription validation event", "id", n.ID, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, http.StatusText(http.StatusBadRequest))
		return
	}
	slog.InfoContext(ctx, "subscription validation accepted", "id", n.ID, "validation_code", data.ValidationCode)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"validationResponse": data.ValidationCode,
	})
}

func coalesce(strs ...string) string {
	for _, str := range strs {
		if str != "" {
			return str
		}
	}
	return ""
}
