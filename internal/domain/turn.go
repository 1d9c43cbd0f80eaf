package domain

// Turn is one entry of a backend request. The set of implementations is
// closed: SystemTurn, UserTurn and AssistantTurn.
type Turn interface {
	Text() string
	isTurn()
}

type SystemTurn struct {
	Content string
}

type UserTurn struct {
	Content  string
	ImageURL string
}

type AssistantTurn struct {
	Content string
}

func (t SystemTurn) Text() string    { return t.Content }
func (t UserTurn) Text() string      { return t.Content }
func (t AssistantTurn) Text() string { return t.Content }

func (SystemTurn) isTurn()    {}
func (UserTurn) isTurn()      {}
func (AssistantTurn) isTurn() {}

// TurnFromMessage converts a stored message into a backend turn.
func TurnFromMessage(m Message) Turn {
	switch m.Role {
	case RoleAssistant:
		return AssistantTurn{Content: m.Content}
	case RoleSystem:
		return SystemTurn{Content: m.Content}
	default:
		return UserTurn{Content: m.Content}
	}
}
