package blobcast

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Songmu/flextime"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cloudwatchtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// TelemetryOption contains configuration for telemetry emission.
//
// Supported telemetry types:
//   - "cloudwatch": Metrics go to Amazon CloudWatch, events to the structured log (default)
//   - "log": Both metrics and events go to the structured log (suitable for development)
type TelemetryOption struct {
	Type      string `help:"telemetry type" default:"cloudwatch" enum:"cloudwatch,log" env:"BLOBCAST_TELEMETRY_TYPE"`
	Namespace string `help:"cloudwatch metric namespace (cloudwatch type only)" default:"blobcast" env:"BLOBCAST_TELEMETRY_NAMESPACE"`
}

// Telemetry defines the interface for recording named discrete events and
// named numeric metrics with dimensional tags. Implementations must be safe
// for concurrent use from multiple simultaneous invocations.
type Telemetry interface {
	TrackEvent(ctx context.Context, name string, props map[string]string)
	TrackMetric(ctx context.Context, name string, value float64, dims map[string]string)
}

// NewTelemetry creates a Telemetry implementation based on the configuration type.
func NewTelemetry(ctx context.Context, cfg TelemetryOption) (Telemetry, error) {
	switch cfg.Type {
	case "cloudwatch":
		return NewCloudWatchTelemetry(ctx, cfg)
	case "log":
		return NewLogTelemetry(ctx, cfg)
	}
	return nil, errors.New("unknown telemetry type")
}

// CloudWatchClient is the interface for Amazon CloudWatch operations.
// This is satisfied by *cloudwatch.Client.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchTelemetry implements Telemetry using Amazon CloudWatch for
// metrics. Discrete events are emitted as structured log records; metric
// delivery failures are logged and swallowed, telemetry never fails an
// invocation.
type CloudWatchTelemetry struct {
	client    CloudWatchClient
	namespace string
}

// NewCloudWatchTelemetry creates a new CloudWatch-based telemetry emitter.
func NewCloudWatchTelemetry(_ context.Context, cfg TelemetryOption) (*CloudWatchTelemetry, error) {
	awsCfg, err := loadAWSConfig()
	if err != nil {
		return nil, err
	}
	t := &CloudWatchTelemetry{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: cfg.Namespace,
	}
	return t, nil
}

func (t *CloudWatchTelemetry) TrackEvent(ctx context.Context, name string, props map[string]string) {
	logTelemetryEvent(ctx, name, props)
}

func (t *CloudWatchTelemetry) TrackMetric(ctx context.Context, name string, value float64, dims map[string]string) {
	dimensions := make([]cloudwatchtypes.Dimension, 0, len(dims))
	for k, v := range dims {
		dimensions = append(dimensions, cloudwatchtypes.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}
	_, err := t.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(t.namespace),
		MetricData: []cloudwatchtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Timestamp:  aws.Time(flextime.Now()),
				Unit:       cloudwatchtypes.StandardUnitCount,
				Dimensions: dimensions,
			},
		},
	})
	if err != nil {
		slog.WarnContext(ctx, "PutMetricData failed", "namespace", t.namespace, "metric", name, "error", err)
	}
}

// LogTelemetry implements Telemetry by writing both events and metrics as
// structured log records.
type LogTelemetry struct{}

// NewLogTelemetry creates a new log-based telemetry emitter.
func NewLogTelemetry(_ context.Context, _ TelemetryOption) (*LogTelemetry, error) {
	return &LogTelemetry{}, nil
}

func (t *LogTelemetry) TrackEvent(ctx context.Context, name string, props map[string]string) {
	logTelemetryEvent(ctx, name, props)
}

func (t *LogTelemetry) TrackMetric(ctx context.Context, name string, value float64, dims map[string]string) {
	attrs := make([]any, 0, 2*len(dims)+4)
	attrs = append(attrs, "telemetry", "metric", "metric", name, "value", value)
	for k, v := range dims {
		attrs = append(attrs, k, v)
	}
	slog.InfoContext(ctx, "track metric", attrs...)
}

func logTelemetryEvent(ctx context.Context, name string, props map[string]string) {
	attrs := make([]any, 0, 2*len(props)+4)
	attrs = append(attrs, "telemetry", "event", "event", name)
	for k, v := range props {
		attrs = append(attrs, k, v)
	}
	slog.InfoContext(ctx, "track event", attrs...)
}
