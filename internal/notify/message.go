// Package notify turns events into chat messages and fans them out to
// subscribed targets.
package notify

import (
	"fmt"
	"strings"

	"tswatcher/internal/model"
	"tswatcher/internal/utils"
)

// maxListedNames caps the online-name list in status messages.
const maxListedNames = 10

// JoinMessage renders a confirmed join.
func JoinMessage(alias string, c model.Client) string {
	return fmt.Sprintf("🎧 [%s] %s joined the server", alias, c.Nickname)
}

// LeaveMessage renders a confirmed leave.
func LeaveMessage(alias string, c model.Client) string {
	return fmt.Sprintf("👋 [%s] %s left the server", alias, c.Nickname)
}

// StatusMessage renders a periodic status report. Online names beyond
// maxListedNames are truncated with a remainder marker.
func StatusMessage(alias string, st model.ServerStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 [%s] %s\n", alias, st.Name)
	fmt.Fprintf(&b, "Online: %d/%d | Channels: %d | Uptime: %s",
		st.ClientsOnline, st.MaxClients, st.ChannelsOnline,
		utils.FormatDuration(st.UptimeSeconds))

	if len(st.Clients) == 0 {
		b.WriteString("\nNobody online")
		return b.String()
	}

	names := make([]string, 0, len(st.Clients))
	for _, c := range st.Clients {
		if len(names) == maxListedNames {
			break
		}
		names = append(names, c.Nickname)
	}
	fmt.Fprintf(&b, "\nWho: %s", strings.Join(names, ", "))
	if extra := len(st.Clients) - maxListedNames; extra > 0 {
		fmt.Fprintf(&b, " and %d more", extra)
	}
	return b.String()
}

// Render picks the message for an event; ok is false for kinds that
// carry no renderable payload.
func Render(ev model.Event) (string, bool) {
	switch ev.Kind {
	case model.EventClientJoined:
		if ev.Client == nil {
			return "", false
		}
		return JoinMessage(ev.Alias, *ev.Client), true
	case model.EventClientLeft:
		if ev.Client == nil {
			return "", false
		}
		return LeaveMessage(ev.Alias, *ev.Client), true
	case model.EventStatusTick:
		if ev.Status == nil {
			return "", false
		}
		return StatusMessage(ev.Alias, *ev.Status), true
	}
	return "", false
}
