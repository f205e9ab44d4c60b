package conversation

// History is an append-only, ordered message log with value semantics.
// Append never modifies the receiver, so a History handed to a caller stays
// valid no matter what happens to later copies.
type History struct {
	messages []Message
}

// NewHistory copies msgs into a fresh History.
func NewHistory(msgs ...Message) History {
	return History{messages: cloneMessages(msgs)}
}

// Len returns the number of messages.
func (h History) Len() int {
	return len(h.messages)
}

// Messages returns a copy of the log.
func (h History) Messages() []Message {
	return cloneMessages(h.messages)
}

// Append returns a new History with msgs added at the end.
func (h History) Append(msgs ...Message) History {
	out := make([]Message, 0, len(h.messages)+len(msgs))
	out = append(out, h.messages...)
	out = append(out, cloneMessages(msgs)...)
	return History{messages: out}
}

// LastByRole returns the most recent message authored by role.
func (h History) LastByRole(role Role) (Message, bool) {
	return LastMatching(h.messages, IsRole(role))
}

// LastMatching scans msgs from the end and returns the first message that
// satisfies pred.
func LastMatching(msgs []Message, pred func(Message) bool) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if pred(msgs[i]) {
			return msgs[i], true
		}
	}
	return Message{}, false
}

func cloneMessages(msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.ToolCalls != nil {
			m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
		out[i] = m
	}
	return out
}
