package domain

import "time"

type RoomID int64

type RoomStatus string

const (
	RoomActive RoomStatus = "active"
	RoomClosed RoomStatus = "closed"
)

// RoomInfo is the descriptive record returned by room listing or creation.
// Not authoritative; always re-derivable from the gateway's own listing.
type RoomInfo struct {
	ID            RoomID     `json:"id"`
	Name          string     `json:"name"`
	MaxPublishers int        `json:"max_publishers"`
	Participants  int        `json:"participants"`
	Status        RoomStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// RemoteFeed is a remote participant's published media. The feed id is
// assigned by the gateway, never derived client-side.
type RemoteFeed struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	AudioActive bool   `json:"audio_active"`
	VideoActive bool   `json:"video_active"`
}

// Participant is one entry of a room's participant listing.
type Participant struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Publisher   bool   `json:"publisher"`
	Talking     bool   `json:"talking"`
}
