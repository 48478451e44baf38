package platform

import (
	"os"
	"strings"

	"github.com/gen2brain/malgo"
)

// RuntimeKind classifies the environment the engine runs in. Background
// behavior differs: embedded runtimes suspend timers aggressively, installed
// ones less so.
type RuntimeKind string

const (
	// RuntimeDesktop is a regular desktop or server process
	RuntimeDesktop RuntimeKind = "desktop"
	// RuntimeStandalone is an installed-app (standalone display) shell
	RuntimeStandalone RuntimeKind = "standalone"
	// RuntimeEmbedded is an embedded WebView shell
	RuntimeEmbedded RuntimeKind = "embedded"
)

// Capabilities is the full result of the environment probe. Components depend
// on this struct only, never on raw environment sniffing.
type Capabilities struct {
	// AudioOutput reports whether a real audio output device is available
	AudioOutput bool
	// MediaSession reports whether an OS-level media control bridge exists
	MediaSession bool
	// BackgroundSuspension reports whether the runtime suspends timers and
	// event delivery while backgrounded
	BackgroundSuspension bool
	// Autoplay reports whether playback may start without a user gesture
	Autoplay bool
	// Runtime is the detected runtime kind
	Runtime RuntimeKind
}

// Detect probes the current environment once. The TOMESHELF_RUNTIME,
// TOMESHELF_HEADLESS, TOMESHELF_MEDIA_BRIDGE and TOMESHELF_NO_AUTOPLAY
// variables let the app shell describe itself to the engine.
func Detect() Capabilities {
	caps := Capabilities{
		Autoplay: os.Getenv("TOMESHELF_NO_AUTOPLAY") == "",
		Runtime:  detectRuntime(),
	}

	caps.MediaSession = os.Getenv("TOMESHELF_MEDIA_BRIDGE") != ""
	caps.BackgroundSuspension = caps.Runtime != RuntimeDesktop
	caps.AudioOutput = detectAudioOutput()

	return caps
}

func detectRuntime() RuntimeKind {
	switch strings.ToLower(os.Getenv("TOMESHELF_RUNTIME")) {
	case "standalone":
		return RuntimeStandalone
	case "embedded", "webview":
		return RuntimeEmbedded
	default:
		return RuntimeDesktop
	}
}

func detectAudioOutput() bool {
	if os.Getenv("TOMESHELF_HEADLESS") != "" {
		return false
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return false
	}
	_ = ctx.Uninit()
	ctx.Free()
	return true
}
