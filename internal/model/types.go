package model

import "time"

// Defaults for newly added servers.
const (
	DefaultQueryPort       = 10011
	DefaultVirtualServerID = 1
	DefaultStatusInterval  = 60 // minutes
)

// ServerConfig describes one monitored TeamSpeak server, keyed by alias.
type ServerConfig struct {
	Alias           string `json:"alias"`
	Host            string `json:"host"`
	QueryPort       int    `json:"query_port"`
	QueryUser       string `json:"query_user"`
	QueryPassword   string `json:"query_password"`
	VirtualServerID int    `json:"virtual_server_id"`
	NotifyJoin      bool   `json:"notify_join"`
	NotifyLeave     bool   `json:"notify_leave"`
	StatusInterval  int    `json:"status_interval"` // minutes
	AtAllOnStatus   bool   `json:"at_all_on_status"`
	AddedBy         string `json:"added_by,omitempty"`
	AddedAtUnix     int64  `json:"added_at_unix,omitempty"`
}

// Subscription holds one chat's notification preferences for one server.
// A subscription with all three flags false is treated as absent.
type Subscription struct {
	NotifyJoin   bool `json:"notify_join"`
	NotifyLeave  bool `json:"notify_leave"`
	NotifyStatus bool `json:"notify_status"`
}

// Empty reports whether the subscription carries no remaining interest.
func (s Subscription) Empty() bool {
	return !s.NotifyJoin && !s.NotifyLeave && !s.NotifyStatus
}

// Client is one connection reported by the ServerQuery clientlist.
type Client struct {
	ID         int    `json:"id"`
	Nickname   string `json:"nickname"`
	DatabaseID int    `json:"database_id"`
	ChannelID  int    `json:"channel_id"`
	Type       int    `json:"type"`
}

// IsServiceConnection reports whether this is a query/management
// connection. Those never count toward the online total and never
// trigger join/leave events.
func (c Client) IsServiceConnection() bool {
	return c.Type != 0
}

// ServerSummary is the raw serverinfo result. ClientsOnline is the
// server-reported count, which includes query connections; callers
// wanting a human count must use a filtered clientlist instead.
type ServerSummary struct {
	Name           string
	ClientsOnline  int
	MaxClients     int
	ChannelsOnline int
	UptimeSeconds  int
}

// ServerStatus is the assembled status for a status-tick notification.
// ClientsOnline is always the filtered clientlist length.
type ServerStatus struct {
	Name           string
	ClientsOnline  int
	MaxClients     int
	ChannelsOnline int
	UptimeSeconds  int
	Clients        []Client
}

// EventKind discriminates notification events.
type EventKind string

const (
	EventClientJoined EventKind = "client_joined"
	EventClientLeft   EventKind = "client_left"
	EventStatusTick   EventKind = "status_tick"
)

// Event is the unit handed from a poll loop to the dispatcher.
// Client is set for join/leave events, Status for status ticks.
type Event struct {
	ID     string
	Kind   EventKind
	Alias  string
	Client *Client
	Status *ServerStatus
	At     time.Time
}
