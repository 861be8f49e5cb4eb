package app

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggingObserver is the default video observer: it only records stream
// lifecycle. Embedding applications provide their own observer to attach
// media elements.
type LoggingObserver struct {
	log zerolog.Logger
}

func NewLoggingObserver() *LoggingObserver {
	return &LoggingObserver{log: log.With().Str("module", "video").Logger()}
}

func (o *LoggingObserver) OnLocalStreamReady() {
	o.log.Info().Msg("local stream publishing")
}

func (o *LoggingObserver) OnRemoteStreamAdded(feedID int64, streamID string) {
	o.log.Info().Int64("feed_id", feedID).Str("stream_id", streamID).Msg("remote stream added")
}

func (o *LoggingObserver) OnRemoteStreamRemoved(feedID int64) {
	o.log.Info().Int64("feed_id", feedID).Msg("remote stream removed")
}

func (o *LoggingObserver) OnConnectionStateChanged(state string) {
	o.log.Info().Str("state", state).Msg("peer connection state")
}
