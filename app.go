package blobcast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fujiwara/ridge"
	"github.com/gorilla/mux"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"

	"github.com/aratasato/blobcast/pkg/blobevent"
)

// App wires the forwarder to its collaborators and exposes the webhook
// delivery surface plus the operational commands.
type App struct {
	router    *mux.Router
	forwarder *Forwarder
	queue     Queue
	telemetry Telemetry
	journal   Journal
	token     string
}

// AppOption contains application level options.
type AppOption struct {
	Token string `help:"shared token required as ?token= on webhook requests (empty disables the check)" env:"BLOBCAST_WEBHOOK_TOKEN"`
}

// New creates an App. journal and rules are optional; pass nil to disable.
func New(opt AppOption, queue Queue, telemetry Telemetry, journal Journal, rules *RuleSet) (*App, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if telemetry == nil {
		return nil, errors.New("telemetry is required")
	}
	app := &App{
		router:    mux.NewRouter(),
		forwarder: NewForwarder(queue, telemetry, journal, rules),
		queue:     queue,
		telemetry: telemetry,
		journal:   journal,
		token:     opt.Token,
	}
	app.setupRoute()
	return app, nil
}

// Forwarder returns the underlying forwarder.
func (app *App) Forwarder() *Forwarder {
	return app.forwarder
}

// Close tears down collaborators that hold resources.
func (app *App) Close() error {
	eg, _ := errgroup.WithContext(context.Background())
	for _, c := range []any{app.queue, app.telemetry, app.journal} {
		closer, ok := c.(io.Closer)
		if !ok {
			continue
		}
		eg.Go(closer.Close)
	}
	return eg.Wait()
}

// ServeOption contains options for the serve command.
type ServeOption struct {
	Port int `help:"webhook httpd port" default:"25288" env:"BLOBCAST_PORT"`
}

// Serve runs the webhook server until the context is canceled. On AWS Lambda
// the same handler is served through the Lambda runtime instead of a local
// listener.
func (app *App) Serve(ctx context.Context, opt ServeOption) error {
	slog.InfoContext(ctx, "starting webhook server", "port", opt.Port, "on_lambda", isLambda())
	ridge.RunWithContext(ctx, fmt.Sprintf(":%d", opt.Port), "/", app)
	return nil
}

// SendOption contains options for the send command.
type SendOption struct {
	File string `arg:"" name:"file" help:"path to a JSON file containing a notification array or NDJSON stream"`
}

// Send forwards notifications read from a local file. Intended for
// development and replaying captured deliveries.
func (app *App) Send(ctx context.Context, opt SendOption) error {
	fp, err := os.Open(opt.File)
	if err != nil {
		return fmt.Errorf("open %s: %w", opt.File, err)
	}
	defer fp.Close()
	notifications, err := decodeNotifications(fp)
	if err != nil {
		return fmt.Errorf("decode %s: %w", opt.File, err)
	}
	ctx = WithCorrelationID(ctx, newCorrelationID())
	for _, n := range notifications {
		if err := app.forwarder.Forward(ctx, n); err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "sent notifications", "count", len(notifications))
	return nil
}

// ListOption contains options for the list command.
type ListOption struct {
	Output io.Writer `kong:"-"`
}

// List prints the journal's delivery records.
func (app *App) List(ctx context.Context, opt ListOption) error {
	if app.journal == nil {
		return errors.New("journal is not configured")
	}
	w := opt.Output
	if w == nil {
		w = os.Stdout
	}
	itemsCh, err := app.journal.FindAllDeliveries(ctx)
	if err != nil {
		return fmt.Errorf("find all deliveries: %w", err)
	}
	table := tablewriter.NewWriter(w)
	table.Header("Message ID", "Label", "URL", "Delivered At")
	for items := range itemsCh {
		for _, item := range items {
			table.Append([]string{
				item.MessageID,
				item.Label,
				item.URL,
				item.DeliveredAt.Format(time.RFC3339),
			})
		}
	}
	return table.Render()
}

// decodeNotifications accepts either a JSON array of notifications or an
// NDJSON stream of single notifications.
func decodeNotifications(r io.Reader) ([]*blobevent.Notification, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var notifications []*blobevent.Notification
	if err := json.Unmarshal(content, &notifications); err == nil {
		return notifications, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(content))
	for decoder.More() {
		var n blobevent.Notification
		if err := decoder.Decode(&n); err != nil {
			return nil, err
		}
		notifications = append(notifications, &n)
	}
	return notifications, nil
}

var _ http.Handler = (*App)(nil)
