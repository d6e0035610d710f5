package presenter

import (
	"testing"
	"time"

	"reviewdraft/internal/draft/model"

	"github.com/stretchr/testify/assert"
)

func TestTimeAgo(t *testing.T) {
	now := time.Date(2024, 9, 16, 12, 0, 0, 0, time.UTC)
	cases := map[time.Duration]string{
		0:                "just now",
		59 * time.Second: "just now",
		time.Minute:      "1 min ago",
		59 * time.Minute: "59 min ago",
		2 * time.Hour:    "2 h ago",
		49 * time.Hour:   "2 d ago",
		-5 * time.Second: "just now",
	}
	for age, want := range cases {
		assert.Equal(t, want, TimeAgo(now.Add(-age), now), "age %s", age)
	}
}

func TestPresent(t *testing.T) {
	now := time.Date(2024, 9, 16, 12, 0, 0, 0, time.UTC)
	at := now.Add(-5 * time.Minute)

	assert.Equal(t, "Saved (5 min ago)", Present(model.StatusSaved, &at, now).Text)
	assert.Equal(t, "Saved", Present(model.StatusSaved, nil, now).Text)
	assert.Equal(t, "Draft loaded (last edited 5 min ago)", Present(model.StatusLoadedDraft, &at, now).Text)

	errLabel := Present(model.StatusError, &at, now)
	assert.Equal(t, "wifi-off", errLabel.Icon)
	assert.Equal(t, "red", errLabel.Tone)

	assert.Equal(t, "clock", Present(model.StatusUnsaved, nil, now).Icon)
	assert.Equal(t, "loader", Present(model.StatusSaving, nil, now).Icon)
	assert.Equal(t, model.StatusLabel{}, Present("bogus", nil, now))
}
