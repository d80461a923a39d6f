package mcsession

import (
	"errors"
	"fmt"

	"github.com/Tnze/go-mc/bot"
	"github.com/Tnze/go-mc/bot/msg"
	"github.com/Tnze/go-mc/chat"
	"github.com/Tnze/go-mc/data/packetid"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/zephyrtronium/banana/game"
)

// classify describes an error returned from packet handling. The result is
// nil if the error ends the connection.
func classify(err error) *game.Error {
	var he bot.PacketHandlerError
	if !errors.As(err, &he) {
		return nil
	}
	// Chat from senders missing from the player list and chat that fails
	// validation are both routine on proxied servers.
	if he.ID == packetid.ClientboundPlayerChat || errors.Is(err, msg.InvalidChatPacket) {
		return &game.Error{Kind: game.KindIgnorable, Op: "handle chat", Err: err}
	}
	if kicked(err) != "" {
		return nil
	}
	var ge *game.Error
	if errors.As(err, &ge) {
		return ge
	}
	return &game.Error{Kind: game.KindProtocol, Op: fmt.Sprintf("handle packet %v", he.ID), Err: err}
}

// kicked returns the disconnect reason if err is a disconnect from the
// server, or the empty string otherwise.
func kicked(err error) string {
	var d bot.DisconnectErr
	if !errors.As(err, &d) {
		return ""
	}
	r := chat.Message(d).ClearString()
	if r == "" {
		r = "disconnected by server"
	}
	return r
}

// component is the part of a chat component used for kick reasons.
type component struct {
	Text      string           `json:"text"`
	Translate string           `json:"translate"`
	Extra     []jsontext.Value `json:"extra"`
}

// kickReason extracts readable text from a JSON chat component: its text,
// else its translation key, else the reason of its first extra component.
// Input that is not JSON is returned as is.
func kickReason(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s
	}
	var c component
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return raw
	}
	switch {
	case c.Text != "":
		return c.Text
	case c.Translate != "":
		return c.Translate
	case len(c.Extra) != 0:
		return kickReason(string(c.Extra[0]))
	default:
		return raw
	}
}
