package protocol

// NewStartMessage creates a start message for a single-utterance session
func NewStartMessage(session, language string) (*Message, error) {
	return NewMessage(TypeStart, StartData{
		Session:    session,
		Language:   language,
		Interim:    false,
		Continuous: false,
	})
}

// NewStopMessage creates a stop message
func NewStopMessage(session string) (*Message, error) {
	return NewMessage(TypeStop, StopData{Session: session})
}

// NewResultMessage creates a result message
func NewResultMessage(session, text string, final bool) (*Message, error) {
	return NewMessage(TypeResult, ResultData{Session: session, Text: text, Final: final})
}

// NewErrorMessage creates an error message
func NewErrorMessage(session, code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Session: session, Code: code, Message: message})
}

// NewEndMessage creates an end message
func NewEndMessage(session string) (*Message, error) {
	return NewMessage(TypeEnd, EndData{Session: session})
}

// NewPongMessage creates a pong response
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}
