package mosaic

import (
	"context"
	"sync"
	"time"
)

// ChannelID identifies a live channel in the host's catalog.
type ChannelID string

// SessionID uniquely identifies a mosaic session.
type SessionID string

// Geometry describes the per-tile dimensions of the composed output. The
// final frame size follows from the layout (tiles across x tiles down).
type Geometry struct {
	TileWidth  int
	TileHeight int
}

// DefaultGeometry is used when the caller does not override tile dimensions.
// Four default tiles compose into a 1280x720 frame.
var DefaultGeometry = Geometry{TileWidth: 640, TileHeight: 360}

// DefaultBitrateKbps is the default encoding bitrate ceiling for the
// composed output.
const DefaultBitrateKbps = 3000

// Session is one active mosaic composition: a set of resolved channel inputs
// composed by a single engine process into one HLS output. A session owns its
// engine process exclusively; teardown is the only release point.
type Session struct {
	ID SessionID

	// Requested is the channel list as given by the caller. Order determines
	// tile position and audio track index.
	Requested []ChannelID

	// Inputs maps successfully resolved channels to their source URLs. A
	// channel absent here failed resolution and is dropped from the session.
	Inputs map[ChannelID]string

	// Names maps resolved channels to display names, used as audio track
	// titles in the composed output.
	Names map[ChannelID]string

	// HeaderFiles maps channels whose source requires an authorization header
	// to the on-disk file holding that header, referenced per input so the
	// header value never appears in the process argument list.
	HeaderFiles map[ChannelID]string

	Geometry    Geometry
	BitrateKbps int

	// Owner is the identity of the caller that created the session.
	Owner string

	// Dir is the session's private working directory; deleted on teardown.
	Dir string

	// ManifestPath is the externally reachable path (relative to the public
	// base URL) of the HLS manifest the engine writes.
	ManifestPath string

	CreatedAt time.Time

	proc   Process
	cancel context.CancelFunc

	stopOnce sync.Once

	mu         sync.Mutex
	lastAccess time.Time
}

// Touch records boundary-API activity against the session, resetting the
// idle clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// LastAccess returns the time of the most recent boundary-API activity.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// ResolvedChannels returns the resolved channels in request order. This is
// the input order the composer uses for tile positions and audio tracks.
func (s *Session) ResolvedChannels() []ChannelID {
	out := make([]ChannelID, 0, len(s.Inputs))
	for _, ch := range s.Requested {
		if _, ok := s.Inputs[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
