package domain

import "time"

// InboundMessage is the normalized envelope a channel adapter produces
// for one user utterance.
type InboundMessage struct {
	Channel   string
	ChatID    string
	UserID    string
	Content   string
	Timestamp time.Time
}

// OutboundMessage is the synthesized response routed back to a channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}
