// Package query wraps the TeamSpeak ServerQuery protocol behind a
// small session interface so the monitor can be exercised with fakes.
package query

import (
	"fmt"

	ts3 "github.com/multiplay/go-ts3"

	"tswatcher/internal/model"
)

// Session is one authenticated ServerQuery connection.
type Session interface {
	// ClientList returns the raw online connections, query clients
	// included; filtering is the caller's concern.
	ClientList() ([]model.Client, error)
	ServerInfo() (model.ServerSummary, error)
	Close() error
}

// DialFunc opens a session for a server config.
type DialFunc func(cfg model.ServerConfig) (Session, error)

// Dial connects, logs in and selects the virtual server.
func Dial(cfg model.ServerConfig) (Session, error) {
	c, err := ts3.NewClient(fmt.Sprintf("%s:%d", cfg.Host, cfg.QueryPort))
	if err != nil {
		return nil, fmt.Errorf("connect %s:%d: %w", cfg.Host, cfg.QueryPort, err)
	}
	if err := c.Login(cfg.QueryUser, cfg.QueryPassword); err != nil {
		c.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := c.Use(cfg.VirtualServerID); err != nil {
		c.Close()
		return nil, fmt.Errorf("select virtual server %d: %w", cfg.VirtualServerID, err)
	}
	return &session{c: c}, nil
}

type session struct {
	c *ts3.Client
}

func (s *session) ClientList() ([]model.Client, error) {
	list, err := s.c.Server.ClientList()
	if err != nil {
		return nil, fmt.Errorf("clientlist: %w", err)
	}
	out := make([]model.Client, 0, len(list))
	for _, cl := range list {
		out = append(out, model.Client{
			ID:         cl.ID,
			Nickname:   cl.Nickname,
			DatabaseID: cl.DatabaseID,
			ChannelID:  cl.ChannelID,
			Type:       cl.Type,
		})
	}
	return out, nil
}

func (s *session) ServerInfo() (model.ServerSummary, error) {
	info, err := s.c.Server.Info()
	if err != nil {
		return model.ServerSummary{}, fmt.Errorf("serverinfo: %w", err)
	}
	return model.ServerSummary{
		Name:           info.Name,
		ClientsOnline:  info.ClientsOnline,
		MaxClients:     info.MaxClients,
		ChannelsOnline: info.ChannelsOnline,
		UptimeSeconds:  info.Uptime,
	}, nil
}

func (s *session) Close() error {
	return s.c.Close()
}
