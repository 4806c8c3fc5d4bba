package notifications_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisebite/notifykit/pkg/notifications"
)

func TestDecodePage_PreservesServerOrder(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"notifications": [
			{"id": "n3", "title": "Order picked up", "content": "Enjoy!", "type": "order_update", "is_read": false, "created_at": "2026-08-30T18:00:00Z"},
			{"id": "n2", "title": "Weekend deal", "content": "Half price bags", "type": "promotion", "is_read": true, "created_at": "2026-08-30T12:00:00"},
			{"id": "n1", "title": "Welcome", "content": "Thanks for joining", "type": "mystery", "is_read": true, "created_at": "2026-08-29T09:30:00Z"}
		],
		"total": 3,
		"unread_count": 1
	}`)

	page, err := notifications.DecodePage(notifications.RoleConsumer, body)
	require.NoError(t, err)

	require.Len(t, page.Notifications, 3)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.UnreadCount)

	assert.Equal(t, "n3", page.Notifications[0].ID)
	assert.Equal(t, "n2", page.Notifications[1].ID)
	assert.Equal(t, "n1", page.Notifications[2].ID)

	// Urgent categories are flagged important.
	assert.Equal(t, notifications.CategoryOrderUpdate, page.Notifications[0].Category)
	assert.True(t, page.Notifications[0].Important)
	assert.False(t, page.Notifications[1].Important)

	// Unknown types fall back to the system category.
	assert.Equal(t, notifications.CategorySystem, page.Notifications[2].Category)

	// Zone-less backend timestamps parse too.
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), page.Notifications[1].CreatedAt)
}

func TestDecodePage_InvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := notifications.DecodePage(notifications.RoleConsumer, []byte(`{"notifications": [`))
	require.Error(t, err)
}

func TestDecodeFrame_MerchantOrder(t *testing.T) {
	t.Parallel()

	frame := []byte(`{"id": "f1", "title": "New order", "message": "Surprise bag reserved", "type": "new_order", "order_id": "ord-42"}`)

	n, err := notifications.DecodeFrame(notifications.RoleMerchant, frame)
	require.NoError(t, err)

	assert.Equal(t, "f1", n.ID)
	assert.Equal(t, "New order", n.Title)
	assert.Equal(t, "Surprise bag reserved", n.Body)
	assert.Equal(t, notifications.CategoryNewOrder, n.Category)
	assert.True(t, n.Important)
	assert.False(t, n.Read)
	assert.Equal(t, "ord-42", n.RelatedEntityID)
	assert.WithinDuration(t, time.Now(), n.CreatedAt, 5*time.Second)
}

func TestDecodeFrame_ImportantFlagOverride(t *testing.T) {
	t.Parallel()

	frame := []byte(`{"id": "f2", "title": "Notice", "message": "Terms updated", "type": "system", "is_important": true}`)

	n, err := notifications.DecodeFrame(notifications.RoleConsumer, frame)
	require.NoError(t, err)
	assert.Equal(t, notifications.CategorySystem, n.Category)
	assert.True(t, n.Important)
}

func TestDecodeFrame_MissingID(t *testing.T) {
	t.Parallel()

	frame := []byte(`{"title": "Hello", "message": "World"}`)

	a, err := notifications.DecodeFrame(notifications.RoleConsumer, frame)
	require.NoError(t, err)
	b, err := notifications.DecodeFrame(notifications.RoleConsumer, frame)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestDecodeFrame_Malformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
	}{
		{name: "not json", data: `hello`},
		{name: "missing title", data: `{"message": "body only"}`},
		{name: "missing message", data: `{"title": "title only"}`},
		{name: "empty object", data: `{}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := notifications.DecodeFrame(notifications.RoleConsumer, []byte(tc.data))
			assert.ErrorIs(t, err, notifications.ErrMalformedFrame)
		})
	}
}

func TestDecodeFrame_DefaultsToOrderCategory(t *testing.T) {
	t.Parallel()

	frame := []byte(`{"id": "f3", "title": "Update", "message": "Your order moved"}`)

	n, err := notifications.DecodeFrame(notifications.RoleConsumer, frame)
	require.NoError(t, err)
	assert.Equal(t, notifications.CategoryOrderUpdate, n.Category)
	assert.True(t, n.Important)
}
