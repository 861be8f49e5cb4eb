package gateway

import (
	"encoding/json"
)

// Protocol verbs and constants of the gateway's JSON signaling protocol.
const (
	Subprotocol = "janus-protocol"

	verbCreate    = "create"
	verbAttach    = "attach"
	verbDetach    = "detach"
	verbMessage   = "message"
	verbTrickle   = "trickle"
	verbKeepalive = "keepalive"

	replySuccess = "success"
	replyAck     = "ack"
	replyError   = "error"
	replyEvent   = "event"

	videoroomPlugin = "janus.plugin.videoroom"

	// Gateway-side error code for "room already exists".
	codeRoomExists = 427
)

// JSEP is the SDP offer/answer payload. The SDP content is opaque here.
type JSEP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is one trickled ICE candidate.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	Completed     bool   `json:"completed,omitempty"`
}

// Request is one outbound frame. The transaction id is assigned by the
// session when the request is sent.
type Request struct {
	Janus       string     `json:"janus"`
	Transaction string     `json:"transaction,omitempty"`
	SessionID   int64      `json:"session_id,omitempty"`
	HandleID    int64      `json:"handle_id,omitempty"`
	Plugin      string     `json:"plugin,omitempty"`
	Body        any        `json:"body,omitempty"`
	JSEP        *JSEP      `json:"jsep,omitempty"`
	Candidate   *Candidate `json:"candidate,omitempty"`
}

// Message is one inbound frame: a correlated reply, an ack, or an
// unsolicited event (no transaction).
type Message struct {
	Janus       string      `json:"janus"`
	Transaction string      `json:"transaction,omitempty"`
	SessionID   int64       `json:"session_id,omitempty"`
	Sender      int64       `json:"sender,omitempty"`
	Data        *IDData     `json:"data,omitempty"`
	Plugindata  *Plugindata `json:"plugindata,omitempty"`
	JSEP        *JSEP       `json:"jsep,omitempty"`
	Error       *WireError  `json:"error,omitempty"`
}

type IDData struct {
	ID int64 `json:"id"`
}

type WireError struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type Plugindata struct {
	Plugin string          `json:"plugin"`
	Data   json.RawMessage `json:"data"`
}

// VideoroomData is the decoded videoroom plugin payload.
type VideoroomData struct {
	Videoroom    string              `json:"videoroom"`
	Room         int64               `json:"room,omitempty"`
	ID           int64               `json:"id,omitempty"`
	PrivateID    int64               `json:"private_id,omitempty"`
	Display      string              `json:"display,omitempty"`
	Publishers   []PublisherInfo     `json:"publishers,omitempty"`
	Leaving      json.RawMessage     `json:"leaving,omitempty"`
	Unpublished  json.RawMessage     `json:"unpublished,omitempty"`
	Exists       bool                `json:"exists,omitempty"`
	Rooms        []RoomRecord        `json:"rooms,omitempty"`
	Participants []ParticipantRecord `json:"participants,omitempty"`
	ErrorCode    int                 `json:"error_code,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// PublisherInfo announces one remote publisher inside a room event.
type PublisherInfo struct {
	ID          int64  `json:"id"`
	Display     string `json:"display,omitempty"`
	AudioActive bool   `json:"audio_active,omitempty"`
	VideoActive bool   `json:"video_active,omitempty"`
}

type RoomRecord struct {
	Room            int64  `json:"room"`
	Description     string `json:"description,omitempty"`
	MaxPublishers   int    `json:"max_publishers,omitempty"`
	NumParticipants int    `json:"num_participants,omitempty"`
}

type ParticipantRecord struct {
	ID        int64  `json:"id"`
	Display   string `json:"display,omitempty"`
	Publisher bool   `json:"publisher,omitempty"`
	Talking   bool   `json:"talking,omitempty"`
}

// Videoroom decodes the plugin payload of an event or reply. Returns a
// ProtocolError when the frame carries no videoroom plugin data.
func (m *Message) Videoroom() (*VideoroomData, error) {
	if m.Plugindata == nil || m.Plugindata.Plugin != videoroomPlugin {
		return nil, &ProtocolError{Reason: "frame carries no videoroom plugin data"}
	}
	var d VideoroomData
	if err := json.Unmarshal(m.Plugindata.Data, &d); err != nil {
		return nil, &ProtocolError{Reason: "undecodable plugin data: " + err.Error()}
	}
	return &d, nil
}

// FeedRef decodes the "leaving"/"unpublished" fields, which hold either a
// numeric feed id or the string "ok" for the local participant itself.
func FeedRef(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}
