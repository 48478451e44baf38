package platform

import "sync"

// BridgeCommand is a transport command arriving from outside the app: the OS
// lock screen, a headset button, or whatever shell hosts the engine.
type BridgeCommand string

const (
	BridgePlay     BridgeCommand = "play"
	BridgePause    BridgeCommand = "pause"
	BridgeNext     BridgeCommand = "next"
	BridgePrevious BridgeCommand = "previous"
)

// NowPlaying is the engine's published transport state for external controls
type NowPlaying struct {
	BookID   string  `json:"bookId"`
	FileID   string  `json:"fileId"`
	Title    string  `json:"title"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

// SessionBridge connects the engine to OS-level media controls. The engine
// publishes its transport state through it and consumes commands from it, so
// external controls and in-app controls always observe a single state.
type SessionBridge interface {
	// Publish updates the externally visible now-playing state
	Publish(np NowPlaying)
	// Commands delivers external transport commands to the engine
	Commands() <-chan BridgeCommand
	// Close releases the bridge
	Close()
}

// ChannelBridge is an in-process SessionBridge. App shells call Dispatch when
// the OS delivers a media-key event and read State for lock-screen metadata.
type ChannelBridge struct {
	commands chan BridgeCommand
	state    chan NowPlaying

	mu     sync.Mutex // guards latest, read by shell goroutines
	latest NowPlaying
}

// NewChannelBridge creates an in-process session bridge
func NewChannelBridge() *ChannelBridge {
	return &ChannelBridge{
		commands: make(chan BridgeCommand, 8),
		state:    make(chan NowPlaying, 1),
	}
}

// Publish updates the externally visible now-playing state
func (b *ChannelBridge) Publish(np NowPlaying) {
	b.mu.Lock()
	b.latest = np
	b.mu.Unlock()
	// Keep only the most recent state
	select {
	case <-b.state:
	default:
	}
	select {
	case b.state <- np:
	default:
	}
}

// Commands delivers external transport commands to the engine
func (b *ChannelBridge) Commands() <-chan BridgeCommand {
	return b.commands
}

// Dispatch injects an external transport command. Drops the command when the
// engine is not draining, rather than blocking the OS callback.
func (b *ChannelBridge) Dispatch(cmd BridgeCommand) bool {
	select {
	case b.commands <- cmd:
		return true
	default:
		return false
	}
}

// State returns the most recently published now-playing state
func (b *ChannelBridge) State() NowPlaying {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// Close releases the bridge
func (b *ChannelBridge) Close() {
	close(b.commands)
}

// NoopBridge is used when the probe found no media-session support
type NoopBridge struct{}

func (NoopBridge) Publish(NowPlaying)             {}
func (NoopBridge) Commands() <-chan BridgeCommand { return nil }
func (NoopBridge) Close()                         {}
