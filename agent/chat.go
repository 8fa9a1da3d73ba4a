package agent

import (
	"context"
	"fmt"
)

// ChatFallback answers anything the other specialists don't cover with a
// single persona-framed model call.
type ChatFallback struct {
	planner *Planner
	logFunc func(string)
}

func NewChatFallback(planner *Planner, logFunc func(string)) *ChatFallback {
	if logFunc == nil {
		logFunc = func(string) {}
	}
	return &ChatFallback{planner: planner, logFunc: logFunc}
}

func (c *ChatFallback) Answer(ctx context.Context, state *State) *State {
	reply, err := c.planner.Respond(ctx, state.UserInput)
	if err != nil {
		c.logFunc(fmt.Sprintf("[CHAT] Model call failed: %v", err))
		state.AddMessage(RoleAssistant, fmt.Sprintf("Chat error: %v", err))
		return state
	}
	state.AddMessage(RoleAssistant, reply)
	return state
}
