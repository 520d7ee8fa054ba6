package notify_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/notify"
	"greendrake/haggle/internal/utils"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func sampleNotification() *models.Notification {
	n := &models.Notification{
		RecipientID: "user-1",
		ActorID:     "user-2",
		Type:        models.NotificationTypeOffer,
		Data:        map[string]interface{}{"offerId": "ABC"},
	}
	n.ID = utils.NewSixID()
	return n
}

func TestCompositePublisher_CallsAllAndJoinsErrors(t *testing.T) {
	n := sampleNotification()
	ok := new(MockPublisher)
	failing := new(MockPublisher)
	ok.On("Publish", mock.Anything, n).Return(nil)
	failing.On("Publish", mock.Anything, n).Return(errors.New("redis down"))

	cp := notify.NewCompositePublisher(ok)
	cp.AddPublisher(failing)
	cp.AddPublisher(nil)

	err := cp.Publish(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	ok.AssertExpectations(t)
	failing.AssertExpectations(t)
}

func TestCompositePublisher_Empty(t *testing.T) {
	err := notify.NewCompositePublisher().Publish(context.Background(), sampleNotification())
	assert.Error(t, err)
}

func TestFilePublisher_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "notifications.log")
	p, err := notify.NewFilePublisher(path)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), sampleNotification()))
	require.NoError(t, p.Publish(context.Background(), sampleNotification()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		assert.Contains(t, entry, "notification")
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestNewFilePublisher_EmptyPath(t *testing.T) {
	_, err := notify.NewFilePublisher("  ")
	assert.Error(t, err)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "notifications:user-1", notify.Channel("user-1"))
}
