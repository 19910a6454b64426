package chat

import (
	"errors"
	"testing"
	"time"
)

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want error
	}{
		{"user text", NewUserText("hello"), nil},
		{"ai code only", NewAIReply("", &CodeBlock{Language: "go", Content: "x := 1"}), nil},
		{"ai text and code", NewAIReply("Here:", &CodeBlock{Content: "x"}), nil},
		{"ai image", NewAIImage("data:image/jpeg;base64,AA==", "a cat"), nil},
		{"empty", Message{Sender: SenderAI}, ErrEmptyMessage},
		{"image with text", Message{Sender: SenderAI, Text: "x", Image: &Image{Src: "s"}}, ErrMixedImage},
		{"image with code", Message{Sender: SenderAI, Code: &CodeBlock{}, Image: &Image{Src: "s"}}, ErrMixedImage},
		{"bad sender", Message{Sender: "bot", Text: "x"}, ErrUnknownSender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewAIImage(t *testing.T) {
	m := NewAIImage("data:image/png;base64,AA==", "a red bicycle")
	if m.Image.Alt != "a red bicycle" || m.Image.Prompt != "a red bicycle" {
		t.Errorf("image = %+v, want alt and prompt set", m.Image)
	}
	if m.HasText() {
		t.Error("image message should not have text")
	}
}

func TestLogAppend(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	l := NewLog(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	first, err := l.Append(NewUserText("hello"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	second, err := l.Append(NewAIText("Hi there!"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if first.ID != 1 || second.ID != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", first.ID, second.ID)
	}
	if !second.Timestamp.After(first.Timestamp) {
		t.Error("timestamps should follow append order")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}

	msgs := l.Messages()
	if msgs[1].Text != "Hi there!" {
		t.Errorf("Messages()[1] = %+v", msgs[1])
	}
}

func TestLogRejectsInvalid(t *testing.T) {
	l := NewLog(nil)
	if _, err := l.Append(Message{Sender: SenderUser}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Append() error = %v, want ErrEmptyMessage", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}

	// A rejected append must not consume an ID.
	m, err := l.Append(NewUserText("ok"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if m.ID != 1 {
		t.Errorf("ID = %d, want 1", m.ID)
	}
}

func TestLogMessagesAreCopies(t *testing.T) {
	l := NewLog(nil)
	if _, err := l.Append(NewAIReply("x", &CodeBlock{Language: "go", Content: "a"})); err != nil {
		t.Fatal(err)
	}

	msgs := l.Messages()
	msgs[0].Text = "changed"
	msgs[0].Code.Content = "changed"

	again := l.Messages()
	if again[0].Text != "x" || again[0].Code.Content != "a" {
		t.Errorf("log mutated through copy: %+v", again[0])
	}
}
