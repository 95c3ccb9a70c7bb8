// Package mode decides which capture pipelines run during a recording.
//
// A recording runs in one of four modes. Visual takes screenshots, audio
// transcribes speech, both does both, and auto alternates between visual and
// audio based on the measured volume level. The Controller is a plain value:
// it returns Actions and the session coordinator carries them out.
package mode

import (
	"fmt"
	"strings"
	"time"
)

// Mode is a capture mode.
type Mode string

const (
	Visual Mode = "visual"
	Audio  Mode = "audio"
	Both   Mode = "both"
	Auto   Mode = "auto"
)

const (
	// DefaultThreshold is the volume level above which auto mode switches
	// to audio.
	DefaultThreshold = 0.1

	// DefaultPollInterval is how often auto mode samples the volume level.
	DefaultPollInterval = 2 * time.Second
)

// Parse converts a mode name (case-insensitive) to a Mode. An empty name
// selects Visual.
func Parse(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Visual, nil
	case Visual, Audio, Both, Auto:
		return m, nil
	default:
		return "", fmt.Errorf("mode: unknown mode %q (want visual, audio, both or auto)", s)
	}
}

// Action is a pipeline change requested by the Controller.
type Action int

const (
	StartScreenshots Action = iota + 1
	StopScreenshots
	StartTranscription
	StopTranscription
	StartPolling
	StopPolling
)

func (a Action) String() string {
	switch a {
	case StartScreenshots:
		return "start_screenshots"
	case StopScreenshots:
		return "stop_screenshots"
	case StartTranscription:
		return "start_transcription"
	case StopTranscription:
		return "stop_transcription"
	case StartPolling:
		return "start_polling"
	case StopPolling:
		return "stop_polling"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Controller tracks the configured mode and, in auto mode, the active
// sub-mode. The zero value is idle.
type Controller struct {
	mode      Mode
	sub       Mode
	threshold float64
	running   bool
}

// New returns an idle Controller. A threshold <= 0 selects DefaultThreshold.
func New(threshold float64) Controller {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Controller{threshold: threshold}
}

// Start begins a recording in mode m and returns the pipelines to start.
func (c *Controller) Start(m Mode) []Action {
	c.mode = m
	c.running = true
	switch m {
	case Audio:
		c.sub = Audio
		return []Action{StartTranscription}
	case Both:
		c.sub = Both
		return []Action{StartScreenshots, StartTranscription}
	case Auto:
		c.sub = Visual
		return []Action{StartScreenshots, StartPolling}
	default:
		c.mode, c.sub = Visual, Visual
		return []Action{StartScreenshots}
	}
}

// Stop ends the recording and returns the pipelines to stop.
func (c *Controller) Stop() []Action {
	if !c.running {
		return nil
	}
	var acts []Action
	if c.RequiresVisual() {
		acts = append(acts, StopScreenshots)
	}
	if c.RequiresAudio() {
		acts = append(acts, StopTranscription)
	}
	if c.mode == Auto {
		acts = append(acts, StopPolling)
	}
	c.running = false
	return acts
}

// Observe applies one auto-mode volume sample. Outside auto mode it does
// nothing. Switching is immediate; there is no hysteresis.
func (c *Controller) Observe(level float64) []Action {
	if !c.running || c.mode != Auto {
		return nil
	}
	switch {
	case c.sub == Visual && level > c.threshold:
		c.sub = Audio
		return []Action{StopScreenshots, StartTranscription}
	case c.sub == Audio && level <= c.threshold:
		c.sub = Visual
		return []Action{StopTranscription, StartScreenshots}
	}
	return nil
}

// SetThreshold changes the auto-mode threshold. Values <= 0 are ignored.
func (c *Controller) SetThreshold(t float64) {
	if t > 0 {
		c.threshold = t
	}
}

// Mode returns the configured mode.
func (c Controller) Mode() Mode { return c.mode }

// Active returns the pipeline set currently running: visual, audio or both.
// In auto mode it is the active sub-mode.
func (c Controller) Active() Mode { return c.sub }

// Running reports whether a recording is in progress.
func (c Controller) Running() bool { return c.running }

// RequiresAudio reports whether transcription should be running.
func (c Controller) RequiresAudio() bool {
	return c.running && (c.sub == Audio || c.sub == Both)
}

// RequiresVisual reports whether screenshots should be taken.
func (c Controller) RequiresVisual() bool {
	return c.running && (c.sub == Visual || c.sub == Both)
}
