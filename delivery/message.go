package delivery

import (
	"fmt"
	"strings"

	"github.com/NebulaLumino/ClipVault/db"
)

var clipTypeNames = map[string]string{
	"highlight":        "Highlight",
	"play_of_the_game": "Play of the Game",
	"moment":           "Epic Moment",
	"kill":             "Kill",
	"death":            "Death",
	"assist":           "Assist",
	"ace":              "Ace",
	"clutch":           "Clutch",
}

func formatClipType(t string) string {
	if name, ok := clipTypeNames[t]; ok {
		return name
	}
	return t
}

// FormatClipMessage renders the fixed-structure delivery message: title,
// type, duration, watch link, preview link.
func FormatClipMessage(clip *db.Clip) string {
	lines := []string{"🎬 **Your ClipVault Highlights!**", ""}
	if clip.Title != "" {
		lines = append(lines, fmt.Sprintf("**%s**", clip.Title))
	}
	lines = append(lines, fmt.Sprintf("📊 Type: %s", formatClipType(clip.Type)))
	if clip.Duration > 0 {
		lines = append(lines, fmt.Sprintf("⏱️ Duration: %ds", clip.Duration))
	}
	if clip.VideoURL != "" {
		lines = append(lines, fmt.Sprintf("🔗 Watch: %s", clip.VideoURL))
	}
	if clip.ThumbnailURL != "" {
		lines = append(lines, fmt.Sprintf("🖼️ Preview: %s", clip.ThumbnailURL))
	}
	lines = append(lines, "", "_Powered by ClipVault_")
	return strings.Join(lines, "\n")
}
