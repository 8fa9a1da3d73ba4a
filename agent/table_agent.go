package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"susan/datasource"
)

const toolRowCap = 200

// TableAgent is an alternate execution mode for data questions: instead of
// the plan-validate-execute pipeline, the whole question is handed to a
// tool-calling model loop that owns the conversation and issues its own
// queries through the run_select tool. The tool still refuses non-SELECT
// statements; everything else is up to the model.
type TableAgent struct {
	chatModel model.ChatModel
	backend   datasource.Backend
	logFunc   func(string)
	runnable  compose.Runnable[[]*schema.Message, *schema.Message]
}

func NewTableAgent(ctx context.Context, chatModel model.ChatModel, backend datasource.Backend, logFunc func(string)) (*TableAgent, error) {
	if logFunc == nil {
		logFunc = func(string) {}
	}
	a := &TableAgent{chatModel: chatModel, backend: backend, logFunc: logFunc}

	sqlTool := &runSelectTool{backend: backend, logFunc: logFunc}
	tools := []tool.BaseTool{sqlTool}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools: tools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tools node: %v", err)
	}

	var toolInfos []*schema.ToolInfo
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		toolInfos = append(toolInfos, info)
	}
	if err := chatModel.BindTools(toolInfos); err != nil {
		return nil, fmt.Errorf("failed to bind tools: %v", err)
	}

	g := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := g.AddChatModelNode("model", chatModel); err != nil {
		return nil, err
	}
	if err := g.AddToolsNode("tools", toolsNode); err != nil {
		return nil, err
	}
	if err := g.AddEdge(compose.START, "model"); err != nil {
		return nil, err
	}
	// loop back through the tools node until the model stops calling tools
	err = g.AddBranch("model", compose.NewGraphBranch(func(ctx context.Context, msg *schema.Message) (string, error) {
		if len(msg.ToolCalls) > 0 {
			return "tools", nil
		}
		return compose.END, nil
	}, map[string]bool{"tools": true, compose.END: true}))
	if err != nil {
		return nil, err
	}
	if err := g.AddEdge("tools", "model"); err != nil {
		return nil, err
	}

	runnable, err := g.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile table agent graph: %v", err)
	}
	a.runnable = runnable
	return a, nil
}

// Run executes the tool loop for one question and returns the model's final
// prose answer.
func (a *TableAgent) Run(ctx context.Context, question string) (string, error) {
	sys := personaPrompt +
		" Use the run_select tool to query the data as many times as needed, then answer in prose. " +
		"Format tabular answers as Markdown tables."
	if name := a.backend.TableName(); name != "" {
		sys += fmt.Sprintf(" The main table is %q.", name)
	}

	input := []*schema.Message{
		{Role: schema.System, Content: sys},
		{Role: schema.User, Content: question},
	}

	resp, err := a.runnable.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("table agent run failed: %v", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// runSelectTool exposes read-only query access to the model.
type runSelectTool struct {
	backend datasource.Backend
	logFunc func(string)
}

func (t *runSelectTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "run_select",
		Desc: "Execute one read-only SELECT query against the active data backend and return the result as JSON.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "A single SELECT statement. Writes and DDL are rejected.",
				Required: true,
			},
		}),
	}, nil
}

func (t *runSelectTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %v", err)
	}

	query := strings.TrimSpace(args.Query)
	if !IsSelectOnly(query) {
		return "", fmt.Errorf("only SELECT queries are allowed")
	}

	t.logFunc(fmt.Sprintf("[TABLE-AGENT] Executing: %s", query))
	table, err := t.backend.RunSelect(ctx, query)
	if err != nil {
		return "", fmt.Errorf("query failed: %v", err)
	}

	truncated := false
	rows := table.Rows
	if len(rows) > toolRowCap {
		rows = rows[:toolRowCap]
		truncated = true
	}
	out, err := json.Marshal(map[string]any{
		"columns":   table.Columns,
		"rows":      rows,
		"truncated": truncated,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %v", err)
	}
	return string(out), nil
}
