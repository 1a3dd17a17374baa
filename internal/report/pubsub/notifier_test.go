package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
	"github.com/JakeFAU/brokenlinks/internal/report"
)

type fakePublisher struct {
	data    []byte
	attrs   map[string]string
	err     error
	stopped bool
}

func (f *fakePublisher) Publish(_ context.Context, data []byte, attrs map[string]string) (string, error) {
	f.data = data
	f.attrs = attrs
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

func (f *fakePublisher) Stop() {
	f.stopped = true
}

func TestNotifierPublishesSummary(t *testing.T) {
	t.Parallel()

	fake := &fakePublisher{}
	n := newNotifier(fake, nil)

	err := n.Write(context.Background(), report.Meta{
		SessionID: "s1",
		Seed:      "http://x.test/",
		Status:    crawler.StatusCompleted,
		Visited:   4,
	}, []crawler.ErrorRecord{
		{PageURL: "http://x.test/", ResourceURL: "http://x.test/a.png", ErrorCode: 404},
	})
	require.NoError(t, err)

	var got Summary
	require.NoError(t, json.Unmarshal(fake.data, &got))
	require.Equal(t, Summary{
		SessionID: "s1",
		Seed:      "http://x.test/",
		Status:    crawler.StatusCompleted,
		Visited:   4,
		Broken:    1,
	}, got)
	require.Equal(t, "completed", fake.attrs["status"])
	require.Equal(t, "s1", fake.attrs["session_id"])
}

func TestNotifierPublishError(t *testing.T) {
	t.Parallel()

	n := newNotifier(&fakePublisher{err: errors.New("unavailable")}, nil)
	err := n.Write(context.Background(), report.Meta{SessionID: "s1"}, nil)
	require.ErrorContains(t, err, "unavailable")
}

func TestNewRequiresTopic(t *testing.T) {
	t.Parallel()

	_, _, err := New(context.Background(), "project", "", nil)
	require.Error(t, err)
}
