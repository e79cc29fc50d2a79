package blobcast

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/gofrs/flock"
	"github.com/shogo82148/go-retry"
)

// JournalOption contains configuration for the delivery journal.
//
// Supported journal types:
//   - "none": No journal (default)
//   - "dynamodb": Records deliveries in a DynamoDB table
//   - "file": Records deliveries in a local data file (suitable for development)
type JournalOption struct {
	Type       string `help:"journal type" default:"none" enum:"none,dynamodb,file" env:"BLOBCAST_JOURNAL_TYPE"`
	TableName  string `help:"dynamodb table name" default:"blobcast" env:"BLOBCAST_DDB_TABLE_NAME"`
	AutoCreate bool   `help:"auto create dynamodb table" default:"false" env:"BLOBCAST_DDB_AUTO_CREATE" negatable:""`
	DataFile   string `help:"file journal data file" default:"blobcast.dat" env:"BLOBCAST_FILE_JOURNAL_DATA_FILE"`
	LockFile   string `help:"file journal lock file" default:"blobcast.lock" env:"BLOBCAST_FILE_JOURNAL_LOCK_FILE"`
}

// DeliveryItem is one journal record for a published message. Redelivery of
// the same notification overwrites the record; the journal is an operational
// audit aid, not the durability contract.
type DeliveryItem struct {
	MessageID   string
	Label       string
	URL         string
	DeliveredAt time.Time
}

// Journal records deliveries for operational inspection. Implementations are
// best-effort collaborators; a journal failure must never fail forwarding.
type Journal interface {
	RecordDelivery(context.Context, *DeliveryItem) error
	FindAllDeliveries(context.Context) (<-chan []*DeliveryItem, error)
}

// NewJournal creates a Journal implementation based on the configuration
// type. Returns nil for "none".
func NewJournal(ctx context.Context, cfg JournalOption) (Journal, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "dynamodb":
		return NewDynamoDBJournal(ctx, cfg)
	case "file":
		return NewFileJournal(ctx, cfg)
	}
	return nil, errors.New("unknown journal type")
}

func GetAttributeValueAs[T types.AttributeValue](key string, values map[string]types.AttributeValue) (T, bool) {
	var empty T
	value, ok := values[key]
	if !ok {
		return empty, false
	}
	if v, ok := value.(T); ok {
		return v, true
	}
	return empty, false
}

func NewDeliveryItemWithDynamoDBAttributeValues(values map[string]types.AttributeValue) *DeliveryItem {
	item := &DeliveryItem{}
	if v, ok := GetAttributeValueAs[*types.AttributeValueMemberS]("MessageID", values); ok {
		item.MessageID = v.Value
	}
	if v, ok := GetAttributeValueAs[*types.AttributeValueMemberS]("Label", values); ok {
		item.Label = v.Value
	}
	if v, ok := GetAttributeValueAs[*types.AttributeValueMemberS]("URL", values); ok {
		item.URL = v.Value
	}
	if v, ok := GetAttributeValueAs[*types.AttributeValueMemberN]("DeliveredAt", values); ok {
		if deliveredAt, err := strconv.ParseFloat(v.Value, 64); err == nil {
			item.DeliveredAt = time.UnixMilli(int64(deliveredAt))
		}
	}
	return item
}

func (item *DeliveryItem) ToDynamoDBAttributeValues() map[string]types.AttributeValue {
	deliveredAt := strconv.FormatFloat(float64(item.DeliveredAt.UnixMilli()), 'f', -1, 64)
	return map[string]types.AttributeValue{
		"MessageID": &types.AttributeValueMemberS{
			Value: item.MessageID,
		},
		"Label": &types.AttributeValueMemberS{
			Value: item.Label,
		},
		"URL": &types.AttributeValueMemberS{
			Value: item.URL,
		},
		"DeliveredAt": &types.AttributeValueMemberN{
			Value: deliveredAt,
		},
	}
}

// DynamoDBJournal implements Journal using a DynamoDB table keyed by message id.
type DynamoDBJournal struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoDBJournal creates a new DynamoDB-based journal. When AutoCreate is
// set the table is created on first use.
func NewDynamoDBJournal(ctx context.Context, cfg JournalOption) (*DynamoDBJournal, error) {
	awsCfg, err := loadAWSConfig()
	if err != nil {
		return nil, err
	}
	j := &DynamoDBJournal{
		client:    dynamodb.NewFromConfig(awsCfg),
		tableName: cfg.TableName,
	}
	slog.InfoContext(ctx, "check dynamodb table", "table_name", j.tableName)
	exists, err := j.tableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists && cfg.AutoCreate {
		if err := j.createTable(ctx); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (j *DynamoDBJournal) tableExists(ctx context.Context) (bool, error) {
	slog.DebugContext(ctx, "describe dynamodb table", "table_name", j.tableName)
	table, err := j.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(j.tableName),
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) {
			if ae.ErrorCode() == "ResourceNotFoundException" {
				return false, nil
			}
		}
		slog.DebugContext(ctx, "DescribeTable failed", "error", err)
		return false, err
	}
	slog.DebugContext(ctx, "table exists", "table_name", j.tableName, "status", table.Table.TableStatus)
	if table.Table.TableStatus == types.TableStatusActive || table.Table.TableStatus == types.TableStatusUpdating {
		return true, nil
	}
	return false, nil
}

func (j *DynamoDBJournal) waitTableActive(ctx context.Context) error {
	policy := retry.Policy{
		MinDelay: 200 * time.Millisecond,
		MaxDelay: 2 * time.Second,
		MaxCount: 20,
		Jitter:   100 * time.Millisecond,
	}
	retrier := policy.Start(ctx)
	var err error
	var exists bool
	slog.DebugContext(ctx, "wait dynamodb table active", "table_name", j.tableName)
	for retrier.Continue() {
		exists, err = j.tableExists(ctx)
		if err == nil && exists {
			return nil
		}
	}
	slog.DebugContext(ctx, "timeout wait dynamodb table active", "table_name", j.tableName)
	if err == nil {
		return fmt.Errorf("table not active")
	}
	return fmt.Errorf("table not active: %w", err)
}

func (j *DynamoDBJournal) createTable(ctx context.Context) error {
	slog.DebugContext(ctx, "create dynamodb table", "table_name", j.tableName)
	output, err := j.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(j.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("MessageID"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("MessageID"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) {
			if ae.ErrorCode() == "ResourceInUseException" {
				slog.DebugContext(ctx, "table already being created, wait active", "table_name", j.tableName)
				return j.waitTableActive(ctx)
			}
		}
		slog.DebugContext(ctx, "CreateTable failed", "error", err)
		return err
	}
	slog.InfoContext(ctx, "created dynamodb table", "table_arn", aws.ToString(output.TableDescription.TableArn))
	return j.waitTableActive(ctx)
}

func (j *DynamoDBJournal) RecordDelivery(ctx context.Context, item *DeliveryItem) error {
	slog.DebugContext(ctx, "put delivery item", "message_id", item.MessageID, "table_name", j.tableName)
	_, err := j.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(j.tableName),
		Item:      item.ToDynamoDBAttributeValues(),
	})
	if err != nil {
		slog.WarnContext(ctx, "failed put delivery item", "message_id", item.MessageID, "table_name", j.tableName, "error", err)
		return err
	}
	return nil
}

func (j *DynamoDBJournal) FindAllDeliveries(ctx context.Context) (<-chan []*DeliveryItem, error) {
	slog.DebugContext(ctx, "scan dynamodb table", "table_name", j.tableName)
	output, err := j.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:      aws.String(j.tableName),
		Select:         types.SelectAllAttributes,
		ConsistentRead: aws.Bool(false),
	})
	if err != nil {
		slog.DebugContext(ctx, "scan dynamodb table failed", "error", err)
		return nil, err
	}
	slog.DebugContext(ctx, "scan dynamodb table success", "item_count", output.Count)
	ch := make(chan []*DeliveryItem, 10)
	ch <- Map(output.Items, NewDeliveryItemWithDynamoDBAttributeValues)
	if output.LastEvaluatedKey == nil {
		close(ch)
		return ch, nil
	}
	go func() {
		defer close(ch)
		for output.LastEvaluatedKey != nil {
			output, err = j.client.Scan(ctx, &dynamodb.ScanInput{
				TableName:         aws.String(j.tableName),
				Select:            types.SelectAllAttributes,
				ConsistentRead:    aws.Bool(false),
				ExclusiveStartKey: output.LastEvaluatedKey,
			})
			if err != nil {
				slog.ErrorContext(ctx, "background scan dynamodb table failed", "error", err)
				return
			}
			ch <- Map(output.Items, NewDeliveryItemWithDynamoDBAttributeValues)
			time.Sleep(100 * time.Millisecond)
		}
	}()
	return ch, nil
}

// FileJournal implements Journal with a gob data file guarded by a lock file.
type FileJournal struct {
	Items []*DeliveryItem

	LockFile string
	FilePath string
}

// NewFileJournal creates a new file-based journal.
func NewFileJournal(_ context.Context, cfg JournalOption) (*FileJournal, error) {
	j := &FileJournal{
		FilePath: cfg.DataFile,
		LockFile: cfg.LockFile,
	}
	return j, nil
}

func (j *FileJournal) RecordDelivery(ctx context.Context, item *DeliveryItem) error {
	return j.transactional(ctx, func(context.Context) error {
		for i, d := range j.Items {
			if d.MessageID == item.MessageID {
				j.Items[i] = item
				return nil
			}
		}
		j.Items = append(j.Items, item)
		return nil
	})
}

func (j *FileJournal) FindAllDeliveries(ctx context.Context) (<-chan []*DeliveryItem, error) {
	ch := make(chan []*DeliveryItem, 1)
	go func() {
		if err := j.transactional(ctx, func(context.Context) error {
			ch <- j.Items
			return nil
		}); err != nil {
			slog.ErrorContext(ctx, "failed background deliveries read", "error", err)
		}
		close(ch)
	}()
	return ch, nil
}

func (j *FileJournal) transactional(ctx context.Context, fn func(context.Context) error) error {
	fileLock := flock.New(j.LockFile)
	policy := retry.Policy{
		MinDelay: 100 * time.Millisecond,
		MaxDelay: 1 * time.Second,
		MaxCount: 10,
		Jitter:   35 * time.Millisecond,
	}
	retrier := policy.Start(ctx)
	var err error
	var locked bool
	for retrier.Continue() {
		locked, err = fileLock.TryLock()
		if err != nil {
			slog.DebugContext(ctx, "get file journal lock failed", "error", err)
			continue
		}
		if locked {
			break
		}
	}
	if !locked {
		return fmt.Errorf("cannot get lock: %w", err)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			slog.DebugContext(ctx, "file journal unlock failed", "error", err)
		}
	}()
	if err := j.restore(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return j.store(ctx)
}

func (j *FileJournal) restore(ctx context.Context) error {
	fp, err := os.Open(j.FilePath)
	if err != nil {
		slog.DebugContext(ctx, "no journal data file yet", "data_file", j.FilePath, "error", err)
		return nil
	}
	defer fp.Close()
	decoder := gob.NewDecoder(fp)
	if err := decoder.Decode(j); err != nil && err != io.EOF {
		slog.ErrorContext(ctx, "failed restore file journal", "error", err)
		return err
	}
	return nil
}

func (j *FileJournal) store(ctx context.Context) error {
	fp, err := os.Create(j.FilePath)
	if err != nil {
		slog.ErrorContext(ctx, "failed store file journal", "error", err)
		return err
	}
	defer fp.Close()
	encoder := gob.NewEncoder(fp)
	if err := encoder.Encode(j); err != nil {
		slog.ErrorContext(ctx, "failed encode file journal", "error", err)
		return err
	}
	return nil
}
