// Package mcptool exposes weekly assessments as Model Context Protocol tools.
package mcptool

import (
	"context"
	"fmt"
	"strings"

	"pulse-sentinel/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ServerName     = "pulse-sentinel"
	AssessToolName = "assess_weekly_metrics"
	DefaultsTool   = "default_weekly_metrics"
)

type Assessor interface {
	Assess(ctx context.Context, source string, w domain.WeeklyAverages) (*domain.Assessment, error)
}

type AssessmentOutput struct {
	Score     float64         `json:"score" jsonschema:"aggregate anomaly score, roughly 0 to 1"`
	Tier      string          `json:"tier" jsonschema:"none, minor or major"`
	Headline  string          `json:"headline"`
	ModelID   string          `json:"model_id"`
	Remedies  []domain.Remedy `json:"remedies,omitempty" jsonschema:"lifestyle suggestions, present for minor anomalies"`
	Narrative string          `json:"narrative,omitempty"`
}

type DefaultsInput struct{}

type tools struct {
	assessor Assessor
}

func NewServer(assessor Assessor, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)
	t := &tools{assessor: assessor}

	mcp.AddTool(server, &mcp.Tool{
		Name: AssessToolName,
		Description: "Score one week of averaged wearable metrics for anomalies. " +
			"Returns the anomaly tier (none, minor, major), the score and lifestyle suggestions.",
	}, t.assess)

	mcp.AddTool(server, &mcp.Tool{
		Name:        DefaultsTool,
		Description: "Typical weekly averages, useful as a starting point when the user has not supplied every metric.",
	}, t.defaults)

	return server
}

func (t *tools) assess(ctx context.Context, _ *mcp.CallToolRequest, in domain.WeeklyAverages) (*mcp.CallToolResult, AssessmentOutput, error) {
	a, err := t.assessor.Assess(ctx, domain.SourceMCP, in)
	if err != nil {
		return nil, AssessmentOutput{}, err
	}
	out := AssessmentOutput{
		Score:     a.Score,
		Tier:      string(a.Tier),
		Headline:  a.Headline,
		ModelID:   a.ModelID,
		Remedies:  a.Remedies,
		Narrative: a.Narrative,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: Summary(a)}},
	}, out, nil
}

func (t *tools) defaults(ctx context.Context, _ *mcp.CallToolRequest, _ DefaultsInput) (*mcp.CallToolResult, domain.WeeklyAverages, error) {
	d := domain.DefaultWeeklyAverages()
	v := d.Vector()
	parts := make([]string, len(v))
	for i, name := range domain.MetricNames {
		parts[i] = fmt.Sprintf("%s=%g", name, v[i])
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.Join(parts, ", ")}},
	}, d, nil
}

// Summary is the plain-text rendering returned alongside structured output.
func Summary(a *domain.Assessment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (tier %s, score %.3f)", a.Headline, a.Tier, a.Score)
	for _, r := range a.Remedies {
		fmt.Fprintf(&sb, "\n- %s: %s", r.Factor, r.Advice)
	}
	if a.Narrative != "" {
		sb.WriteString("\n\n")
		sb.WriteString(a.Narrative)
	}
	return sb.String()
}
