package event

import "fmt"

// InvokeStart marks the beginning of one agent invocation.
type InvokeStart struct{ Base }

func (InvokeStart) Tags() []Tag { return []Tag{TagAgent} }

// InvokeEnd marks the end of one agent invocation.
type InvokeEnd struct{ Base }

func (InvokeEnd) Tags() []Tag { return []Tag{TagAgent} }

// PluginField carries one field of structured agent output addressed to
// whichever plugin owns Key.
type PluginField struct {
	Base
	Key   string
	Value any
}

func (PluginField) Tags() []Tag { return []Tag{TagAgent} }

// Plain is free text the agent should read as something that happened.
type Plain struct {
	Base
	Content string
}

func (e Plain) AgentMessage() (Message, bool) {
	return Message{Role: RoleEvent, Content: e.Content}, true
}

// UserInput is text typed by the user.
type UserInput struct {
	Base
	Content string
}

func (UserInput) Tags() []Tag { return []Tag{TagUser} }

func (e UserInput) AgentMessage() (Message, bool) {
	return Message{Role: RoleUser, Content: e.Content}, true
}

// Point is a position in playground coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", int(p.X), int(p.Y))
}
