package blobcast

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

func TestFileJournal(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()
	journal, err := NewJournal(ctx, JournalOption{
		Type:     "file",
		DataFile: filepath.Join(tmpDir, "blobcast.dat"),
		LockFile: filepath.Join(tmpDir, "blobcast.lock"),
	})
	require.NoError(t, err)
	require.NotNil(t, journal)

	first := &DeliveryItem{
		MessageID:   "m-1",
		Label:       LabelBlobCreated,
		URL:         "https://acct.blob.core.windows.net/files/a.txt",
		DeliveredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, journal.RecordDelivery(ctx, first))
	require.NoError(t, journal.RecordDelivery(ctx, &DeliveryItem{
		MessageID:   "m-2",
		Label:       LabelBlobDeleted,
		URL:         "https://acct.blob.core.windows.net/files/b.txt",
		DeliveredAt: time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
	}))

	var all []*DeliveryItem
	ch, err := journal.FindAllDeliveries(ctx)
	require.NoError(t, err)
	for items := range ch {
		all = append(all, items...)
	}
	require.Len(t, all, 2)
	require.Equal(t, "m-1", all[0].MessageID)
	require.Equal(t, LabelBlobCreated, all[0].Label)
	require.True(t, first.DeliveredAt.Equal(all[0].DeliveredAt))
}

func TestFileJournalRedeliveryOverwrites(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()
	journal, err := NewFileJournal(ctx, JournalOption{
		Type:     "file",
		DataFile: filepath.Join(tmpDir, "blobcast.dat"),
		LockFile: filepath.Join(tmpDir, "blobcast.lock"),
	})
	require.NoError(t, err)

	require.NoError(t, journal.RecordDelivery(ctx, &DeliveryItem{
		MessageID:   "m-1",
		Label:       LabelBlobCreated,
		URL:         "https://acct.blob.core.windows.net/files/a.txt",
		DeliveredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}))
	redelivered := &DeliveryItem{
		MessageID:   "m-1",
		Label:       LabelBlobCreated,
		URL:         "https://acct.blob.core.windows.net/files/a.txt",
		DeliveredAt: time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC),
	}
	require.NoError(t, journal.RecordDelivery(ctx, redelivered))

	var all []*DeliveryItem
	ch, err := journal.FindAllDeliveries(ctx)
	require.NoError(t, err)
	for items := range ch {
		all = append(all, items...)
	}
	require.Len(t, all, 1)
	require.True(t, redelivered.DeliveredAt.Equal(all[0].DeliveredAt))
}

func TestJournalNoneType(t *testing.T) {
	journal, err := NewJournal(context.Background(), JournalOption{Type: "none"})
	require.NoError(t, err)
	require.Nil(t, journal)
}

func TestDeliveryItemDynamoDBAttributeValues(t *testing.T) {
	item := &DeliveryItem{
		MessageID:   "m-1",
		Label:       LabelBlobCreated,
		URL:         "https://acct.blob.core.windows.net/files/a.txt",
		DeliveredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	values := item.ToDynamoDBAttributeValues()
	v, ok := GetAttributeValueAs[*types.AttributeValueMemberS]("MessageID", values)
	require.True(t, ok)
	require.Equal(t, "m-1", v.Value)
	_, ok = GetAttributeValueAs[*types.AttributeValueMemberN]("MessageID", values)
	require.False(t, ok)

	restored := NewDeliveryItemWithDynamoDBAttributeValues(values)
	require.Equal(t, item.MessageID, restored.MessageID)
	require.Equal(t, item.Label, restored.Label)
	require.Equal(t, item.URL, restored.URL)
	require.True(t, item.DeliveredAt.Equal(restored.DeliveredAt))
}
