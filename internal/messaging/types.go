package messaging

import (
	"context"
	"encoding/base64"
	"time"
)

// MimeTypeOpus tags voice notes encoded as Ogg/Opus.
const MimeTypeOpus = "audio/ogg; codecs=opus"

// Inbound is a text message received from the messaging client.
type Inbound struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to,omitempty"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"timestamp"`
}

// Media is an attachment carried inline as base64.
type Media struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
	Filename string `json:"filename,omitempty"`
}

// NewMedia base64-encodes payload into a Media attachment.
func NewMedia(mimeType string, payload []byte, filename string) *Media {
	return &Media{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(payload),
		Filename: filename,
	}
}

// OutboundReply is a reply to one inbound message: either text (Body) or Media.
type OutboundReply struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`
	Body    string `json:"body,omitempty"`
	Media   *Media `json:"media,omitempty"`
}

// ReplyTo builds a text reply addressed to the sender of msg.
func ReplyTo(msg Inbound, body string) OutboundReply {
	return OutboundReply{To: msg.From, From: msg.To, ReplyTo: msg.ID, Body: body}
}

// MediaReplyTo builds a media reply addressed to the sender of msg.
func MediaReplyTo(msg Inbound, media *Media) OutboundReply {
	return OutboundReply{To: msg.From, From: msg.To, ReplyTo: msg.ID, Media: media}
}

// ReplyMessenger delivers replies back to the end user.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// InboundHandler processes one inbound message end to end.
type InboundHandler interface {
	HandleMessage(ctx context.Context, msg Inbound)
}
