package orchestrator

import (
	"errors"

	"github.com/teslashibe/go-converse/pkg/chat"
	"github.com/teslashibe/go-converse/pkg/voice"
)

const msgVoiceStartFailed = "Could not start voice listening. Please try again."

// enqueueVoice is the voice callback. It never blocks.
func (o *Orchestrator) enqueueVoice(ev voice.Event) {
	o.voiceMu.Lock()
	o.voiceQueue = append(o.voiceQueue, ev)
	o.voiceMu.Unlock()

	select {
	case o.voiceSignal <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) drainVoice() []voice.Event {
	o.voiceMu.Lock()
	defer o.voiceMu.Unlock()
	evs := o.voiceQueue
	o.voiceQueue = nil
	return evs
}

// startVoice begins capture. Runs on the actor.
func (o *Orchestrator) startVoice() error {
	o.draft = ""
	o.mode = ModeListening

	if err := o.voice.Start(o.ctx); err != nil {
		o.mode = ModeIdle
		o.logger.Warn("voice start failed", "error", err)

		text := msgVoiceStartFailed
		var ve *voice.Error
		if errors.As(err, &ve) && ve.Kind != voice.KindOther {
			text = ve.Describe()
		}
		o.appendMessage(chat.NewAIText(text))
		return err
	}
	if !o.voice.Listening() {
		// The session ended while starting.
		o.mode = ModeIdle
	}
	return nil
}

// handleVoice applies one voice event. Runs on the actor.
func (o *Orchestrator) handleVoice(ev voice.Event) {
	switch ev.Type {
	case voice.EventTranscript:
		o.mode = ModeIdle
		if ev.Text == "" {
			return
		}
		if o.pending {
			o.logger.Warn("transcript dropped while busy", "session", ev.Session)
			return
		}
		o.submit(ev.Text)

	case voice.EventError:
		o.mode = ModeIdle
		if ev.Err != nil {
			o.appendMessage(chat.NewAIText(ev.Err.Describe()))
		}

	case voice.EventEnded:
		if o.voice.Listening() {
			o.mode = ModeListening
		} else {
			o.mode = ModeIdle
		}
	}
}
