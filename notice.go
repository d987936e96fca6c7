package main

import (
	"encoding/json"
	"log"
	"strconv"
	"sync/atomic"
)

// Notice is a short message pushed to websocket clients, e.g. a rejected
// step or a configuration error.
type Notice struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "error", "warning", "success", "info"
	Message string `json:"message"`
}

var noticeCounter atomic.Int64

func newNotice(noticeType, message string) Notice {
	return Notice{
		ID:      strconv.FormatInt(noticeCounter.Add(1), 10),
		Type:    noticeType,
		Message: message,
	}
}

// hubMessage is the envelope of everything the hub writes.
type hubMessage struct {
	Type   string     `json:"type"` // "state" | "notice"
	State  *GameState `json:"state,omitempty"`
	Notice *Notice    `json:"notice,omitempty"`
}

func encodeNotice(n Notice) []byte {
	b, err := json.Marshal(hubMessage{Type: "notice", Notice: &n})
	if err != nil {
		log.Printf("Failed to encode notice: %v", err)
		return nil
	}
	return b
}

func encodeState(s GameState) []byte {
	b, err := json.Marshal(hubMessage{Type: "state", State: &s})
	if err != nil {
		log.Printf("Failed to encode state: %v", err)
		return nil
	}
	return b
}

// sendErrorNotice sends an error notice to every connection of a viewer.
func (h *Hub) sendErrorNotice(viewerID, message string) {
	if msg := encodeNotice(newNotice("error", message)); msg != nil {
		h.sendToViewer(viewerID, msg)
	}
}
