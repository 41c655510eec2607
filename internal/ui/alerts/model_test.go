package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/memberdesk/internal/model"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func alert(id int64, at time.Time) model.Alert {
	return model.Alert{
		Feed:      model.FeedNotifications,
		ItemID:    id,
		Category:  model.CategoryInfo,
		Message:   "item",
		CreatedAt: at,
	}
}

func TestPushSchedulesExpiry(t *testing.T) {
	m := New(5*time.Second, 80)

	m, cmd := m.Push()
	assert.Nil(t, cmd, "nothing to expire")

	m, cmd = m.Push(alert(1, t0))
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.Len())
}

func TestExpireDropsOnlyOldAlerts(t *testing.T) {
	m := New(5*time.Second, 80)
	m, _ = m.Push(alert(1, t0), alert(2, t0.Add(3*time.Second)))

	m, _ = m.Update(expireMsg{at: t0.Add(5 * time.Second)})
	require.Equal(t, 1, m.Len())
	assert.Equal(t, int64(2), m.alerts[0].ItemID)

	m, _ = m.Update(expireMsg{at: t0.Add(8 * time.Second)})
	assert.Zero(t, m.Len())
	assert.Empty(t, m.View())
}

func TestViewShowsNewestWithCount(t *testing.T) {
	m := New(time.Minute, 80)
	for i := int64(1); i <= 5; i++ {
		a := alert(i, t0)
		a.Message = "alert"
		if i == 5 {
			a.Message = "Dues overdue"
			a.Link = "/dues/17"
		}
		m, _ = m.Push(a)
	}

	out := m.View()
	assert.Contains(t, out, "Dues overdue")
	assert.Contains(t, out, "/dues/17")
	assert.Contains(t, out, "+4 more")

	m.Dismiss()
	assert.Empty(t, m.View())
}
