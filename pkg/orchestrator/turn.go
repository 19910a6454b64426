package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-converse/pkg/chat"
	"github.com/teslashibe/go-converse/pkg/inference"
	"github.com/teslashibe/go-converse/pkg/reply"
)

// Conversation notices appended by the orchestrator itself.
const (
	msgImagePromptRequired = "Please provide a description for the image after /image."
	msgEmptyResponse       = "Received an empty response from AI."
	msgImageAckPrefix      = "Okay, generating an image of: "
	msgErrorPrefix         = "Error: "
)

// turn is one request/response exchange.
type turn struct {
	id      string
	input   string
	intent  reply.Intent
	started time.Time
}

// submit appends the user message and dispatches the generation call.
// Runs on the actor.
func (o *Orchestrator) submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyDraft
	}

	if err := o.appendMessage(chat.NewUserText(text)); err != nil {
		return err
	}

	t := &turn{
		id:      uuid.NewString(),
		input:   text,
		intent:  reply.Decode(text),
		started: time.Now(),
	}
	o.draft = ""
	o.pending = true
	o.turn = t

	o.logger.Info("turn started", "turn_id", t.id, "intent", t.intent.Kind.String())
	go o.runTurn(o.ctx, t)
	return nil
}

// settle ends the turn. Runs on the actor.
func (o *Orchestrator) settle(t *turn) {
	if o.turn != t {
		return
	}
	o.turn = nil
	o.pending = false
	o.logger.Info("turn settled", "turn_id", t.id, "latency_ms", time.Since(t.started).Milliseconds())
}

// appendMessage adds a message to the log. Runs on the actor.
func (o *Orchestrator) appendMessage(m chat.Message) error {
	if _, err := o.log.Append(m); err != nil {
		o.logger.Error("message rejected", "sender", m.Sender.String(), "error", err)
		return err
	}
	return nil
}

// runTurn performs the generation call off the actor. Every outcome is
// posted back as messages, followed by exactly one settle.
func (o *Orchestrator) runTurn(ctx context.Context, t *turn) {
	defer o.post(func() { o.settle(t) })
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("turn panicked", "turn_id", t.id, "panic", r)
			o.emit(chat.NewAIText(msgErrorPrefix + fmt.Sprint(r)))
		}
	}()

	if t.intent.IsImage() {
		o.generateImage(ctx, t, t.intent.Prompt)
		return
	}

	raw, err := o.gateway.GenerateText(ctx, t.input)
	if err != nil {
		o.fail(t, err)
		return
	}

	// The model asks for an image by replying with the image command.
	if back := reply.Decode(raw); back.IsImage() {
		o.logger.Debug("model requested image", "turn_id", t.id)
		o.emit(chat.NewAIText(msgImageAckPrefix + back.Prompt))
		o.generateImage(ctx, t, back.Prompt)
		return
	}

	r := reply.Parse(raw)
	if r.Empty() {
		o.emit(chat.NewAIText(msgEmptyResponse))
		return
	}
	o.emit(chat.NewAIReply(r.Text, r.Code))
}

func (o *Orchestrator) generateImage(ctx context.Context, t *turn, prompt string) {
	if prompt == "" {
		o.emit(chat.NewAIText(msgImagePromptRequired))
		return
	}

	img, err := o.gateway.GenerateImage(ctx, prompt)
	if err != nil {
		o.fail(t, err)
		return
	}
	o.emit(chat.NewAIImage(img.DataURI(), prompt))
}

func (o *Orchestrator) fail(t *turn, err error) {
	o.logger.Warn("generation failed",
		"turn_id", t.id,
		"kind", inference.KindOf(err).String(),
		"error", err,
	)
	o.emit(chat.NewAIText(msgErrorPrefix + inference.Describe(err)))
}

// emit posts a message append to the actor.
func (o *Orchestrator) emit(m chat.Message) {
	o.post(func() { o.appendMessage(m) })
}
