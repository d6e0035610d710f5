// Package presenter maps a save status to what the status indicator shows.
package presenter

import (
	"fmt"
	"time"

	"reviewdraft/internal/draft/model"
)

func Present(status model.SaveStatus, updatedAt *time.Time, now time.Time) model.StatusLabel {
	switch status {
	case model.StatusSaving:
		return model.StatusLabel{Text: "Saving...", Icon: "loader", Tone: "blue"}
	case model.StatusSaved:
		text := "Saved"
		if updatedAt != nil {
			text += " (" + TimeAgo(*updatedAt, now) + ")"
		}
		return model.StatusLabel{Text: text, Icon: "save", Tone: "green"}
	case model.StatusLoadedDraft:
		text := "Draft loaded"
		if updatedAt != nil {
			text += " (last edited " + TimeAgo(*updatedAt, now) + ")"
		}
		return model.StatusLabel{Text: text, Icon: "save", Tone: "blue"}
	case model.StatusError:
		return model.StatusLabel{Text: "Save failed", Icon: "wifi-off", Tone: "red"}
	case model.StatusUnsaved:
		return model.StatusLabel{Text: "Unsaved", Icon: "clock", Tone: "orange"}
	default:
		return model.StatusLabel{}
	}
}

// TimeAgo renders the coarse age of t relative to now.
func TimeAgo(t, now time.Time) string {
	secs := int(now.Sub(t) / time.Second)
	switch {
	case secs < 60:
		return "just now"
	case secs < 3600:
		return fmt.Sprintf("%d min ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%d h ago", secs/3600)
	default:
		return fmt.Sprintf("%d d ago", secs/86400)
	}
}
