package email

import (
	"context"
	"sync"

	"github.com/mintlane/authcore"
)

// Message is one captured delivery.
type Message struct {
	Purpose authcore.TokenPurpose
	To      string
	Link    string
}

// Recorder is an EmailSender that captures messages instead of sending
// them. Intended for tests and local tooling.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, purpose authcore.TokenPurpose, to, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Purpose: purpose, To: to, Link: link})
	return nil
}

// Messages returns a snapshot of everything captured so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message, or false when nothing was sent.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}

var _ authcore.EmailSender = (*Recorder)(nil)
