package server

import (
	"encoding/base64"
	"encoding/json"

	"github.com/MarcoPoloResearchLab/tandem/backend/internal/board"
)

// Client frame types.
const (
	frameHello            = "hello"
	frameSubscribe        = "subscribe"
	frameUnsubscribe      = "unsubscribe"
	frameRegistryAction   = "registry_action"
	frameListAction       = "list_action"
	frameBulletinAction   = "bulletin_action"
	frameSync             = "sync"
	frameRequestFullState = "request_full_state"
)

// Server frame types.
const (
	frameWelcome  = "welcome"
	frameSnapshot = "snapshot"
	frameError    = "error"
)

// clientFrame is the envelope of every inbound websocket message.
type clientFrame struct {
	Type          string          `json:"type"`
	ClientVersion string          `json:"clientVersion,omitempty"`
	Doc           *board.DocKey   `json:"doc,omitempty"`
	ListID        string          `json:"listId,omitempty"`
	Action        json.RawMessage `json:"action,omitempty"`
	Data          string          `json:"data,omitempty"`
}

// serverFrame is the envelope of every outbound websocket message.
type serverFrame struct {
	Type    string        `json:"type"`
	UserID  string        `json:"userId,omitempty"`
	Doc     *board.DocKey `json:"doc,omitempty"`
	State   interface{}   `json:"state,omitempty"`
	Data    string        `json:"data,omitempty"`
	Code    string        `json:"code,omitempty"`
	Message string        `json:"message,omitempty"`
}

func welcomeFrame(userID board.UserID) serverFrame {
	return serverFrame{Type: frameWelcome, UserID: userID.String()}
}

func snapshotFrame(key board.DocKey, state interface{}) serverFrame {
	doc := key
	return serverFrame{Type: frameSnapshot, Doc: &doc, State: state}
}

func syncFrame(key board.DocKey, message []byte) serverFrame {
	doc := key
	return serverFrame{
		Type: frameSync,
		Doc:  &doc,
		Data: base64.StdEncoding.EncodeToString(message),
	}
}

func errorFrame(code board.ErrorCode, message string) serverFrame {
	return serverFrame{Type: frameError, Code: string(code), Message: message}
}
