package core

// Envelope is one message flowing through a named hub channel.
type Envelope struct {
	Channel string `json:"channel"`
	From    string `json:"from,omitempty"`
	Payload any    `json:"payload"`
}

// SignalBus is a generic publish/subscribe hub over named channels.
// Subscribe returns a receive channel and a cancel func; cancellation is
// explicit, a dropped subscriber channel is never garbage-collected away.
type SignalBus interface {
	Publish(channel string, from string, payload any) error
	Subscribe(channel string) (<-chan Envelope, func())
}
