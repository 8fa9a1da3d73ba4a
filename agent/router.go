package agent

import (
	"context"
	"fmt"
	"strings"
)

// Classifier maps a user request to one of the four intents. The LLM-backed
// implementation is the default; tests plug in deterministic ones.
type Classifier interface {
	Classify(ctx context.Context, text string) (Intent, string, error)
}

// LLMClassifier asks the planner for a single-label classification.
type LLMClassifier struct {
	planner *Planner
}

func NewLLMClassifier(planner *Planner) *LLMClassifier {
	return &LLMClassifier{planner: planner}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (Intent, string, error) {
	schemaHint := `{"intent": "one of: sql | chart | web | chat", "note": "short reason"}`
	task := fmt.Sprintf("Classify this user request into exactly one intent.\n"+
		"sql: questions answerable by querying tabular data.\n"+
		"chart: requests to visualize or plot data.\n"+
		"web: requests to check, fetch or summarize web pages / URLs.\n"+
		"chat: everything else.\n\nRequest: %s", text)

	plan, err := c.planner.PlanJSON(ctx, task, schemaHint)
	if err != nil {
		return IntentChat, "", err
	}

	intent, _ := plan["intent"].(string)
	note, _ := plan["note"].(string)
	intent = strings.ToLower(strings.TrimSpace(intent))
	if !ValidIntent(intent) {
		return IntentChat, note, nil
	}
	return Intent(intent), note, nil
}

// Router assigns an intent to the current turn and records the decision in
// the conversation log. Misclassification is tolerated downstream: every
// specialist fails soft, so a wrong label costs a turn, never a crash.
type Router struct {
	classifier Classifier
	logFunc    func(string)
}

func NewRouter(classifier Classifier, logFunc func(string)) *Router {
	if logFunc == nil {
		logFunc = func(string) {}
	}
	return &Router{classifier: classifier, logFunc: logFunc}
}

func (r *Router) Route(ctx context.Context, state *State) *State {
	intent, note, err := r.classifier.Classify(ctx, state.UserInput)
	if err != nil {
		r.logFunc(fmt.Sprintf("[ROUTER] Classification failed, defaulting to chat: %v", err))
		intent, note = IntentChat, "classifier unavailable"
	}
	if !ValidIntent(string(intent)) {
		intent = IntentChat
	}

	state.Intent = intent
	state.AddMessage(RoleSystem, fmt.Sprintf("Router chose: %s (%s)", intent, note))
	r.logFunc(fmt.Sprintf("[ROUTER] Intent: %s (%s)", intent, note))
	return state
}
