package blobcast

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppSend(t *testing.T) {
	tmpDir := t.TempDir()
	eventFile := filepath.Join(tmpDir, "events.json")
	require.NoError(t, os.WriteFile(eventFile, []byte("["+createdNotificationJSON+","+deletedNotificationJSON+"]"), 0644))

	queue := &stubQueue{}
	app, _ := newTestApp(t, AppOption{}, queue)
	require.NoError(t, app.Send(context.Background(), SendOption{File: eventFile}))

	msgs := queue.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, LabelBlobCreated, msgs[0].Label)
	require.Equal(t, LabelBlobDeleted, msgs[1].Label)
}

func TestAppSendNDJSON(t *testing.T) {
	tmpDir := t.TempDir()
	eventFile := filepath.Join(tmpDir, "events.ndjson")
	require.NoError(t, os.WriteFile(eventFile, []byte(createdNotificationJSON+"\n"+deletedNotificationJSON+"\n"), 0644))

	queue := &stubQueue{}
	app, _ := newTestApp(t, AppOption{}, queue)
	require.NoError(t, app.Send(context.Background(), SendOption{File: eventFile}))
	require.Len(t, queue.Messages(), 2)
}

func TestAppList(t *testing.T) {
	queue := &stubQueue{}
	telemetry := &stubTelemetry{}
	journal := &stubJournal{}
	app, err := New(AppOption{}, queue, telemetry, journal, nil)
	require.NoError(t, err)

	n := mustNotification(t, createdNotificationJSON)
	require.NoError(t, app.Forwarder().Forward(context.Background(), n))

	var buf bytes.Buffer
	require.NoError(t, app.List(context.Background(), ListOption{Output: &buf}))
	output := buf.String()
	require.Contains(t, output, n.ID)
	require.Contains(t, output, LabelBlobCreated)
	require.Contains(t, output, "https://acct.blob.core.windows.net/images/photo.jpg")
}

func TestAppListWithoutJournal(t *testing.T) {
	app, _ := newTestApp(t, AppOption{}, nil)
	err := app.List(context.Background(), ListOption{Output: &bytes.Buffer{}})
	require.ErrorContains(t, err, "journal is not configured")
}

func TestAppRequiresCollaborators(t *testing.T) {
	telemetry := &stubTelemetry{}
	_, err := New(AppOption{}, nil, telemetry, nil, nil)
	require.ErrorContains(t, err, "queue is required")

	_, err = New(AppOption{}, &stubQueue{}, nil, nil, nil)
	require.ErrorContains(t, err, "telemetry is required")
}

func TestDecodeNotificationsBadInput(t *testing.T) {
	_, err := decodeNotifications(strings.NewReader(`{invalid`))
	require.Error(t, err)
}
