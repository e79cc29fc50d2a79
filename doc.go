// Package blobcast forwards storage blob change notifications to a message queue.
//
// blobcast receives push deliveries of blob created / blob deleted events,
// normalizes each notification into a typed enriched message, and publishes
// it to a queue for downstream consumption, with structured telemetry for
// every forwarded event.
//
// # Architecture
//
// The package consists of four main components:
//
//   - [Forwarder]: Core pipeline that validates, classifies, enriches and publishes one notification at a time
//   - [Queue]: Durable outbound delivery (SQS, EventBridge or file-based)
//   - [Telemetry]: Event and metric emission (CloudWatch or log-based)
//   - [Journal]: Optional per-delivery audit records (DynamoDB or file-based)
//
// # Usage
//
// For CLI usage, create a [CLI] instance and call Run:
//
//	var cli blobcast.CLI
//	ctx := context.Background()
//	exitCode := cli.Run(ctx)
//
// For programmatic usage, create an [App] instance:
//
//	queue, _ := blobcast.NewQueue(ctx, queueOption)
//	telemetry, _ := blobcast.NewTelemetry(ctx, telemetryOption)
//	app, _ := blobcast.New(appOption, queue, telemetry, nil, nil)
//	defer app.Close()
//
// # Delivery semantics
//
// The forwarder performs no retries of its own. A propagated error tells the
// push service to redeliver the original notification; publish retries and
// backoff live in the queue transport. Messages carry the inbound delivery
// id so downstream consumers can deduplicate redeliveries.
//
// # Deployment Modes
//
// blobcast serves the same handler as a local HTTP server or on AWS Lambda
// (via [github.com/fujiwara/ridge]).
package blobcast
