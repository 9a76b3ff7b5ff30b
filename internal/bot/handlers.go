// Package bot implements the /ts chat command surface.
package bot

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"tswatcher/internal/config"
	"tswatcher/internal/model"
	"tswatcher/internal/monitor"
	"tswatcher/internal/query"
	"tswatcher/internal/store"
	"tswatcher/internal/utils"
)

const minStatusIntervalMin = 10

type Handlers struct {
	api     *tgbotapi.BotAPI
	cfg     config.Config
	store   *store.Store
	manager *monitor.Manager
	dial    query.DialFunc
	logger  *zap.Logger
}

func NewHandlers(api *tgbotapi.BotAPI, cfg config.Config, st *store.Store, mgr *monitor.Manager, dial query.DialFunc, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		api:     api,
		cfg:     cfg,
		store:   st,
		manager: mgr,
		dial:    dial,
		logger:  logger.Named("bot"),
	}
}

// Handle processes one update. Callers run it on its own goroutine so
// the blocking commands (add, status) never stall the update feed.
func (h *Handlers) Handle(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := strings.TrimSpace(upd.Message.Text)
	chatID := upd.Message.Chat.ID

	fields := strings.Fields(msg)
	if len(fields) == 0 {
		return
	}
	cmd := strings.SplitN(fields[0], "@", 2)[0]
	if cmd != "/ts" && cmd != "/start" && cmd != "/help" {
		return
	}

	sub := "help"
	args := []string{}
	if cmd == "/ts" && len(fields) > 1 {
		sub = fields[1]
		args = fields[2:]
	}

	var userID int64
	if upd.Message.From != nil {
		userID = upd.Message.From.ID
	}

	switch sub {
	case "help":
		h.reply(chatID, helpText)

	case "add":
		h.requireAdmin(chatID, userID, func() { h.handleAdd(chatID, userID, args) })

	case "del":
		h.requireAdmin(chatID, userID, func() { h.handleDel(chatID, args) })

	case "ls":
		h.reply(chatID, h.listServers())

	case "sub":
		h.handleSub(chatID, args)

	case "unsub":
		h.handleUnsub(chatID, args)

	case "mysub":
		h.reply(chatID, h.mySubscriptions(chatID))

	case "status":
		h.handleStatus(chatID, args)

	case "join":
		h.requireAdmin(chatID, userID, func() { h.handleServerToggle(chatID, args, "join") })

	case "leave":
		h.requireAdmin(chatID, userID, func() { h.handleServerToggle(chatID, args, "leave") })

	case "atall":
		h.requireAdmin(chatID, userID, func() { h.handleServerToggle(chatID, args, "atall") })

	case "interval":
		h.requireAdmin(chatID, userID, func() { h.handleInterval(chatID, args) })

	case "restart":
		h.requireAdmin(chatID, userID, func() { h.handleRestart(chatID, args) })

	default:
		h.reply(chatID, "Unknown command. Try /ts help")
	}
}

const helpText = `TeamSpeak watcher commands:

/ts add <alias> <host[:port]> <user> <password> [server-id]
/ts del <alias>
/ts ls
/ts sub <alias> [join|leave|status]
/ts unsub <alias> [join|leave|status]
/ts mysub
/ts status [alias]
/ts join <alias> [on|off]
/ts leave <alias> [on|off]
/ts atall <alias> [on|off]
/ts interval <alias> <minutes>
/ts restart [alias|all]`

// ---------- server management ----------

func (h *Handlers) handleAdd(chatID, userID int64, args []string) {
	if len(args) < 4 {
		h.reply(chatID, "Usage: /ts add <alias> <host[:port]> <user> <password> [server-id]")
		return
	}
	alias := args[0]
	if _, exists := h.store.Server(alias); exists {
		h.replyMD(chatID, fmt.Sprintf("❌ Alias `%s` already exists.", alias))
		return
	}

	host, port, err := splitHostPort(args[1])
	if err != nil {
		h.reply(chatID, err.Error())
		return
	}
	vsid := model.DefaultVirtualServerID
	if len(args) > 4 {
		vsid, err = strconv.Atoi(args[4])
		if err != nil || vsid < 1 {
			h.reply(chatID, "Server id must be a positive number.")
			return
		}
	}

	cfg := model.ServerConfig{
		Alias:           alias,
		Host:            host,
		QueryPort:       port,
		QueryUser:       args[2],
		QueryPassword:   args[3],
		VirtualServerID: vsid,
		NotifyJoin:      true,
		NotifyLeave:     true,
		StatusInterval:  model.DefaultStatusInterval,
		AddedBy:         strconv.FormatInt(userID, 10),
		AddedAtUnix:     time.Now().Unix(),
	}

	// verify before persisting; an unreachable server is rejected here
	// instead of spawning a loop doomed to fail
	h.replyMD(chatID, fmt.Sprintf("Checking `%s`...", alias))
	sess, err := h.dial(cfg)
	if err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ Cannot reach `%s`: %v", alias, err))
		return
	}
	info, err := sess.ServerInfo()
	sess.Close()
	if err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ Query on `%s` failed: %v", alias, err))
		return
	}

	if err := h.store.AddServer(cfg); err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ Could not add `%s`: %v", alias, err))
		return
	}
	// the store's change signal has already started the monitor
	h.replyMD(chatID, fmt.Sprintf("✅ Added `%s` (%s). Now watching.", alias, info.Name))
}

func (h *Handlers) handleDel(chatID int64, args []string) {
	if len(args) < 1 {
		h.reply(chatID, "Usage: /ts del <alias>")
		return
	}
	alias := args[0]
	if err := h.store.RemoveServer(alias); err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ %v", err))
		return
	}
	h.replyMD(chatID, fmt.Sprintf("🗑️ Removed `%s` and all its subscriptions.", alias))
}

func (h *Handlers) listServers() string {
	servers := h.store.Servers()
	if len(servers) == 0 {
		return "No servers configured. Add one with /ts add."
	}

	var b strings.Builder
	b.WriteString("Watched servers:\n")
	for _, cfg := range servers {
		state := "stopped"
		if st, ok := h.manager.State(cfg.Alias); ok {
			state = st.String()
		}
		b.WriteString(fmt.Sprintf("- %s | %s:%d | %s | %d subscriber(s)\n",
			cfg.Alias, cfg.Host, cfg.QueryPort, state, h.store.SubscriberCount(cfg.Alias)))
	}
	return b.String()
}

// ---------- subscriptions ----------

func (h *Handlers) handleSub(chatID int64, args []string) {
	if len(args) < 1 {
		h.reply(chatID, "Usage: /ts sub <alias> [join|leave|status]")
		return
	}
	alias := args[0]
	target := strconv.FormatInt(chatID, 10)

	sub, _ := h.store.Subscription(alias, target)
	switch kind := optionalKind(args); kind {
	case "join":
		sub.NotifyJoin = true
	case "leave":
		sub.NotifyLeave = true
	case "status":
		sub.NotifyStatus = true
	case "":
		sub = model.Subscription{NotifyJoin: true, NotifyLeave: true, NotifyStatus: true}
	default:
		h.reply(chatID, "Unknown kind. Use join, leave or status.")
		return
	}

	if err := h.store.SetSubscription(alias, target, sub); err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ %v", err))
		return
	}
	h.replyMD(chatID, fmt.Sprintf("🔔 Subscribed to `%s` (%s).", alias, describeSub(sub)))
}

func (h *Handlers) handleUnsub(chatID int64, args []string) {
	if len(args) < 1 {
		h.reply(chatID, "Usage: /ts unsub <alias> [join|leave|status]")
		return
	}
	alias := args[0]
	target := strconv.FormatInt(chatID, 10)

	kind := optionalKind(args)
	if kind == "" {
		if err := h.store.RemoveSubscription(alias, target); err != nil {
			h.replyMD(chatID, fmt.Sprintf("❌ %v", err))
			return
		}
		h.replyMD(chatID, fmt.Sprintf("🔕 Unsubscribed from `%s`.", alias))
		return
	}

	sub, ok := h.store.Subscription(alias, target)
	if !ok {
		h.replyMD(chatID, fmt.Sprintf("❌ Not subscribed to `%s`.", alias))
		return
	}
	switch kind {
	case "join":
		sub.NotifyJoin = false
	case "leave":
		sub.NotifyLeave = false
	case "status":
		sub.NotifyStatus = false
	default:
		h.reply(chatID, "Unknown kind. Use join, leave or status.")
		return
	}
	if err := h.store.SetSubscription(alias, target, sub); err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ %v", err))
		return
	}
	if sub.Empty() {
		h.replyMD(chatID, fmt.Sprintf("🔕 Unsubscribed from `%s` (no interests left).", alias))
	} else {
		h.replyMD(chatID, fmt.Sprintf("🔔 `%s` now: %s.", alias, describeSub(sub)))
	}
}

func (h *Handlers) mySubscriptions(chatID int64) string {
	subs := h.store.SubscriptionsOf(strconv.FormatInt(chatID, 10))
	if len(subs) == 0 {
		return "This chat has no subscriptions. Use /ts sub <alias>."
	}

	aliases := make([]string, 0, len(subs))
	for alias := range subs {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	var b strings.Builder
	b.WriteString("Subscriptions of this chat:\n")
	for _, alias := range aliases {
		b.WriteString(fmt.Sprintf("- %s: %s\n", alias, describeSub(subs[alias])))
	}
	return b.String()
}

// ---------- status ----------

func (h *Handlers) handleStatus(chatID int64, args []string) {
	if len(args) == 0 {
		h.reply(chatID, fmt.Sprintf("📊 Fleet: %d server(s), %d running, %d subscription(s).",
			len(h.store.Servers()), h.manager.RunningCount(), h.store.TotalSubscriptions()))
		return
	}

	alias := args[0]
	cfg, ok := h.store.Server(alias)
	if !ok {
		h.replyMD(chatID, fmt.Sprintf("❌ Unknown alias `%s`.", alias))
		return
	}

	sess, err := h.dial(cfg)
	if err != nil {
		state := "stopped"
		if st, ok := h.manager.State(alias); ok {
			state = st.String()
		}
		h.replyMD(chatID, fmt.Sprintf("❌ `%s` unreachable (%v). Monitor state: %s.", alias, err, state))
		return
	}
	defer sess.Close()

	st, err := monitor.FetchStatus(sess)
	if err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ Status query on `%s` failed: %v", alias, err))
		return
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 %s (%s)\n", st.Name, alias))
	b.WriteString(fmt.Sprintf("Online: %d/%d | Channels: %d | Uptime: %s\n",
		st.ClientsOnline, st.MaxClients, st.ChannelsOnline, utils.FormatDuration(st.UptimeSeconds)))
	if len(st.Clients) == 0 {
		b.WriteString("Nobody online")
	} else {
		names := make([]string, 0, len(st.Clients))
		for _, c := range st.Clients {
			names = append(names, c.Nickname)
		}
		b.WriteString("Who: " + strings.Join(names, ", "))
	}
	h.reply(chatID, b.String())
}

// ---------- toggles / tuning ----------

func (h *Handlers) handleServerToggle(chatID int64, args []string, which string) {
	if len(args) < 1 {
		h.reply(chatID, fmt.Sprintf("Usage: /ts %s <alias> [on|off]", which))
		return
	}
	alias := args[0]
	arg := ""
	if len(args) > 1 {
		arg = args[1]
	}

	cfg, ok := h.store.Server(alias)
	if !ok {
		h.replyMD(chatID, fmt.Sprintf("❌ Unknown alias `%s`.", alias))
		return
	}

	current := map[string]bool{
		"join":  cfg.NotifyJoin,
		"leave": cfg.NotifyLeave,
		"atall": cfg.AtAllOnStatus,
	}[which]

	newValue, err := utils.ParseToggle(arg, current)
	if err != nil {
		h.reply(chatID, "Use on, off, or nothing to flip.")
		return
	}

	if err := h.store.UpdateServer(alias, func(cfg *model.ServerConfig) {
		switch which {
		case "join":
			cfg.NotifyJoin = newValue
		case "leave":
			cfg.NotifyLeave = newValue
		case "atall":
			cfg.AtAllOnStatus = newValue
		}
	}); err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ %v", err))
		return
	}
	h.replyMD(chatID, fmt.Sprintf("⚙️ %s on `%s` is now %s", which, alias, onOff(newValue)))
}

func (h *Handlers) handleInterval(chatID int64, args []string) {
	if len(args) < 2 {
		h.reply(chatID, "Usage: /ts interval <alias> <minutes>")
		return
	}
	alias := args[0]
	minutes, err := parseIntervalMinutes(args[1])
	if err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ %v", err))
		return
	}

	if err := h.store.UpdateServer(alias, func(cfg *model.ServerConfig) {
		cfg.StatusInterval = minutes
	}); err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ %v", err))
		return
	}
	h.replyMD(chatID, fmt.Sprintf("⏱️ `%s` status interval set to %d minute(s).", alias, minutes))
}

func (h *Handlers) handleRestart(chatID int64, args []string) {
	if len(args) == 0 || args[0] == "all" {
		n := h.manager.RestartAll()
		h.reply(chatID, fmt.Sprintf("🔄 Restarted %d monitor(s).", n))
		return
	}
	if err := h.manager.Restart(args[0]); err != nil {
		h.replyMD(chatID, fmt.Sprintf("❌ %v", err))
		return
	}
	h.replyMD(chatID, fmt.Sprintf("🔄 Restarted `%s`.", args[0]))
}

// ---------- small I/O helpers ----------

func (h *Handlers) requireAdmin(chatID, userID int64, fn func()) {
	if !h.cfg.IsAdmin(userID) {
		h.reply(chatID, "⛔ Admins only.")
		return
	}
	fn()
}

func (h *Handlers) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Warn("reply failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (h *Handlers) replyMD(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Warn("reply failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// parseIntervalMinutes validates a status interval argument. Too-short
// intervals are rejected, not rounded up.
func parseIntervalMinutes(arg string) (int, error) {
	minutes, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("minutes must be a number, got %q", arg)
	}
	if minutes < minStatusIntervalMin {
		return 0, fmt.Errorf("status interval must be at least %d minutes", minStatusIntervalMin)
	}
	return minutes, nil
}

func optionalKind(args []string) string {
	if len(args) > 1 {
		return strings.ToLower(args[1])
	}
	return ""
}

func describeSub(sub model.Subscription) string {
	var parts []string
	if sub.NotifyJoin {
		parts = append(parts, "join")
	}
	if sub.NotifyLeave {
		parts = append(parts, "leave")
	}
	if sub.NotifyStatus {
		parts = append(parts, "status")
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, "+")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// no port given: bare hostname or IPv6 literal
		host = strings.Trim(addr, "[]")
		if host == "" {
			return "", 0, fmt.Errorf("empty host in %q", addr)
		}
		return host, model.DefaultQueryPort, nil
	}
	if host == "" {
		return "", 0, fmt.Errorf("empty host in %q", addr)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil || p < 1 || p > 65535 {
		return "", 0, fmt.Errorf("bad query port in %q", addr)
	}
	return host, p, nil
}
