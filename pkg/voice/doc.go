// Package voice wraps a streaming speech recogniser behind a small state
// machine.
//
// A Controller owns at most one recognition session at a time. Sessions
// are started and stopped by the consumer and end on their own after one
// final transcript, a recognition error, or an engine-side end. Whatever
// happens, the controller leaves the Listening state and reports exactly
// one EventEnded per session.
//
// # Engines
//
// The recogniser itself sits behind the Engine interface:
//
//   - live.Engine streams microphone PCM to the Gemini Live API
//   - web.BrowserEngine drives the browser's recogniser over a websocket
//   - MockEngine injects synthetic events in tests
//
// Each session gets its own Sink. Events arriving on the sink of a session
// that has already ended are dropped, so a slow engine cannot leak a late
// transcript into a newer session.
//
// # Usage
//
//	ctl := voice.NewController(engine)
//	ctl.OnEvent(func(ev voice.Event) {
//	    switch ev.Type {
//	    case voice.EventTranscript:
//	        submit(ev.Text)
//	    case voice.EventError:
//	        show(ev.Err.Describe())
//	    }
//	})
//	if err := ctl.Start(ctx); err != nil {
//	    show(voice.Describe(err))
//	}
package voice
