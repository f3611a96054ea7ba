package domain

// ReplyKind tells the host how to present a Reply.
type ReplyKind string

const (
	ReplyMessage ReplyKind = "message"
	ReplyCard    ReplyKind = "card"
	ReplyEvent   ReplyKind = "event"
)

// Reply is one outbound item produced during a turn.
type Reply struct {
	Kind  ReplyKind    `json:"kind"`
	Topic string       `json:"topic,omitempty"`
	Text  string       `json:"text,omitempty"`
	Card  *CardPayload `json:"card,omitempty"`
	Event *Event       `json:"event,omitempty"`
}

// Turn is everything the orchestrator produced for one piece of user input.
type Turn struct {
	ConversationID string         `json:"conversation_id"`
	Replies        []Reply        `json:"replies"`
	ActiveTopic    string         `json:"active_topic,omitempty"`
	Waiting        bool           `json:"waiting"`
	Result         ActivityResult `json:"result"`
	CallDepth      int            `json:"call_depth"`
}

// Messages returns the text of every message reply, in order.
func (t *Turn) Messages() []string {
	var out []string
	for _, r := range t.Replies {
		if r.Kind == ReplyMessage {
			out = append(out, r.Text)
		}
	}
	return out
}

// LastCard returns the most recent card reply, if any.
func (t *Turn) LastCard() *CardPayload {
	for i := len(t.Replies) - 1; i >= 0; i-- {
		if t.Replies[i].Kind == ReplyCard {
			return t.Replies[i].Card
		}
	}
	return nil
}

// TopicInfo is the public description of a registered topic.
type TopicInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}
