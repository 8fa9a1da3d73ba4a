package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

// Agent wires the router and the four specialists into a single-turn
// dispatch graph: START -> router -> branch on intent -> specialist -> END.
// Exactly one specialist runs per turn.
type Agent struct {
	router      *Router
	sql         *SQLSpecialist
	chart       *ChartSpecialist
	web         *WebChecker
	chat        *ChatFallback
	checkpoints *CheckpointStore
	logFunc     func(string)
	runnable    compose.Runnable[*State, *State]
}

// New compiles the dispatch graph. The checkpoint store is optional; pass
// nil to keep turns purely in-memory.
func New(ctx context.Context, router *Router, sqlSpec *SQLSpecialist, chart *ChartSpecialist,
	web *WebChecker, chat *ChatFallback, checkpoints *CheckpointStore, logFunc func(string)) (*Agent, error) {

	if logFunc == nil {
		logFunc = func(string) {}
	}
	a := &Agent{
		router:      router,
		sql:         sqlSpec,
		chart:       chart,
		web:         web,
		chat:        chat,
		checkpoints: checkpoints,
		logFunc:     logFunc,
	}

	g := compose.NewGraph[*State, *State]()

	if err := g.AddLambdaNode("router", compose.InvokableLambda(
		func(ctx context.Context, s *State) (*State, error) {
			return a.router.Route(ctx, s), nil
		})); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode("sql", compose.InvokableLambda(
		func(ctx context.Context, s *State) (*State, error) {
			return a.sql.Answer(ctx, s), nil
		})); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode("chart", compose.InvokableLambda(
		func(ctx context.Context, s *State) (*State, error) {
			return a.chart.Answer(ctx, s), nil
		})); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode("web", compose.InvokableLambda(
		func(ctx context.Context, s *State) (*State, error) {
			return a.web.Answer(ctx, s), nil
		})); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode("chat", compose.InvokableLambda(
		func(ctx context.Context, s *State) (*State, error) {
			return a.chat.Answer(ctx, s), nil
		})); err != nil {
		return nil, err
	}

	if err := g.AddEdge(compose.START, "router"); err != nil {
		return nil, err
	}
	err := g.AddBranch("router", compose.NewGraphBranch(
		func(ctx context.Context, s *State) (string, error) {
			return string(s.Intent), nil
		},
		map[string]bool{"sql": true, "chart": true, "web": true, "chat": true}))
	if err != nil {
		return nil, err
	}
	for _, node := range []string{"sql", "chart", "web", "chat"} {
		if err := g.AddEdge(node, compose.END); err != nil {
			return nil, err
		}
	}

	runnable, err := g.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile dispatch graph: %v", err)
	}
	a.runnable = runnable
	return a, nil
}

// Run handles one user turn. A non-empty threadID carries the message log
// of earlier turns forward and persists the outcome; checkpoint failures
// are logged and the turn proceeds regardless.
func (a *Agent) Run(ctx context.Context, threadID, question string) (*State, error) {
	state := NewState(question)

	if a.checkpoints != nil && threadID != "" {
		prior, err := a.checkpoints.Load(ctx, threadID)
		if err != nil {
			a.logFunc(fmt.Sprintf("[AGENT] Checkpoint load failed for %q: %v", threadID, err))
		} else if prior != nil {
			state.Messages = prior.Messages
		}
	}
	state.AddMessage(RoleUser, question)

	out, err := a.runnable.Invoke(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("dispatch failed: %v", err)
	}

	if a.checkpoints != nil && threadID != "" {
		if err := a.checkpoints.Save(ctx, threadID, out); err != nil {
			a.logFunc(fmt.Sprintf("[AGENT] Checkpoint save failed for %q: %v", threadID, err))
		}
	}
	return out, nil
}
