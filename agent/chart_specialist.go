package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Trace is one Plotly-compatible data series.
type Trace struct {
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
	Name string `json:"name"`
	X    []any  `json:"x"`
	Y    []any  `json:"y"`
}

// Axis carries a Plotly axis title.
type Axis struct {
	Title string `json:"title"`
}

// Layout is the Plotly layout block.
type Layout struct {
	Title string `json:"title"`
	XAxis Axis   `json:"xaxis"`
}

// ChartSpec is a renderer-agnostic chart description in Plotly JSON shape.
// The agent never renders; it hands this spec to whatever front end asked.
type ChartSpec struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// ChartSpecialist maps the current result table onto a chart spec. When no
// result exists yet it first runs the SQL specialist to produce one.
type ChartSpecialist struct {
	planner      *Planner
	sql          *SQLSpecialist
	artifactsDir string
	logFunc      func(string)
}

func NewChartSpecialist(planner *Planner, sql *SQLSpecialist, artifactsDir string, logFunc func(string)) *ChartSpecialist {
	if logFunc == nil {
		logFunc = func(string) {}
	}
	return &ChartSpecialist{
		planner:      planner,
		sql:          sql,
		artifactsDir: artifactsDir,
		logFunc:      logFunc,
	}
}

func (c *ChartSpecialist) Answer(ctx context.Context, state *State) *State {
	if state.Result.Empty() {
		state = c.sql.Answer(ctx, state)
		if state.Result.Empty() {
			state.AddMessage(RoleAssistant, "No data available to chart.")
			return state
		}
	}
	table := state.Result

	schemaHint := `{"x": "x column", "y": "y column or list of y columns", "kind": "one of: line | bar | scatter", "title": "short title"}`
	task := fmt.Sprintf("Columns available: %s. Pick a chart mapping for: %s",
		strings.Join(table.Columns, ", "), state.UserInput)

	plan, err := c.planner.PlanJSON(ctx, task, schemaHint)
	if err != nil {
		state.AddMessage(RoleAssistant, fmt.Sprintf("Planner error: %v", err))
		return state
	}

	x, _ := plan["x"].(string)
	yFields := yColumns(plan["y"])
	if x == "" || len(yFields) == 0 || !table.HasColumn(x) {
		state.AddMessage(RoleAssistant, "Couldn't infer chart mapping. Please specify x/y.")
		return state
	}
	// every requested series must exist; a partial chart silently hides data
	for _, y := range yFields {
		if !table.HasColumn(y) {
			state.AddMessage(RoleAssistant, fmt.Sprintf("Column '%s' not found.", y))
			return state
		}
	}

	kind, _ := plan["kind"].(string)
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != "line" && kind != "bar" && kind != "scatter" {
		kind = "bar"
	}
	title, _ := plan["title"].(string)
	if title == "" {
		title = state.UserInput
	}

	xVals := table.Column(x)
	traces := make([]Trace, 0, len(yFields))
	for _, y := range yFields {
		tr := Trace{Type: kind, Name: y, X: xVals, Y: table.Column(y)}
		if kind == "line" {
			// Plotly convention: line charts are scatter traces in lines mode
			tr.Type = "scatter"
			tr.Mode = "lines"
		}
		traces = append(traces, tr)
	}

	state.ChartSpec = &ChartSpec{
		Data:   traces,
		Layout: Layout{Title: title, XAxis: Axis{Title: x}},
	}

	reply := "Chart spec generated (Plotly-compatible)."
	if path, err := c.saveArtifact(state.ChartSpec); err != nil {
		c.logFunc(fmt.Sprintf("[CHART] Failed to save artifact: %v", err))
	} else if path != "" {
		state.ChartPath = path
		reply += fmt.Sprintf("\nSaved: %s", path)
	}
	state.AddMessage(RoleAssistant, reply)
	return state
}

func (c *ChartSpecialist) saveArtifact(spec *ChartSpec) (string, error) {
	if c.artifactsDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(c.artifactsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifacts dir: %v", err)
	}
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode chart spec: %v", err)
	}
	path := filepath.Join(c.artifactsDir, fmt.Sprintf("chart_%s.json", uuid.New().String()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write chart spec: %v", err)
	}
	return path, nil
}

// yColumns normalizes the planner's y field, which may be a single column
// name or a list of them.
func yColumns(v any) []string {
	switch y := v.(type) {
	case string:
		y = strings.TrimSpace(y)
		if y == "" {
			return nil
		}
		return []string{y}
	case []any:
		out := make([]string, 0, len(y))
		for _, item := range y {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}
