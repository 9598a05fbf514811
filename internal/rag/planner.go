package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/storage"
)

// The planner asks the model for a short JSON plan over a closed tool
// catalog, then executes the steps itself. Tool dispatch is a closed
// variant: every tool has a typed argument struct, and an unknown tool
// name is a parse failure for that step alone.

// planPrompt instructs the model; the catalog is spelled out verbatim so
// small local models stay inside it.
const planPrompt = `Break the user's question into a short plan of tool calls. Respond with ONLY a JSON array. Each element:
{"id": "s1", "tool": "<search|semantic_search|summarize|answer|list_files|get_entities>", "args": {...}, "depends_on": ["<earlier step id>"]}

Tool args:
- search / semantic_search: {"query": "...", "limit": 5}
- summarize: {"step": "<id of the step whose results to summarize>"}
- answer: {"text": "...", "from": ["<step ids providing evidence>"]}
- list_files: {"query": "...", "limit": 10}
- get_entities: {"kind": "person|org|date|money|geopolitical|product|other"}

Keep plans under 6 steps. The last step should be "answer".

Question: %s`

// PlanStep is one parsed step of the model's plan.
type PlanStep struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args"`
	DependsOn []string        `json:"depends_on"`
}

// StepStatus is the executed outcome of one step.
type StepStatus struct {
	ID     string `json:"id"`
	Tool   string `json:"tool"`
	Failed bool   `json:"failed"`
	Error  string `json:"error,omitempty"`
	Result string `json:"result,omitempty"`
}

// PlannedAnswer is the multi-step result: the final answer plus the
// audit trail of what ran.
type PlannedAnswer struct {
	Answer    string       `json:"answer"`
	Steps     []StepStatus `json:"steps"`
	ModelUsed string       `json:"model_used"`
}

// toolCall is the closed variant the raw step parses into: exactly one
// field is set, selected by the step's tool name.
type toolCall struct {
	search      *searchArgs
	semantic    *searchArgs
	summarize   *summarizeArgs
	answer      *answerArgs
	listFiles   *searchArgs
	getEntities *entitiesArgs
}

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type summarizeArgs struct {
	Step string `json:"step"`
}

type answerArgs struct {
	Text string   `json:"text"`
	From []string `json:"from"`
}

type entitiesArgs struct {
	Kind string `json:"kind"`
}

func parseToolCall(step PlanStep) (toolCall, error) {
	var call toolCall
	decode := func(dst any) error {
		if len(step.Args) == 0 {
			return nil
		}
		return json.Unmarshal(step.Args, dst)
	}
	switch step.Tool {
	case "search":
		call.search = &searchArgs{Limit: 5}
		return call, decode(call.search)
	case "semantic_search":
		call.semantic = &searchArgs{Limit: 5}
		return call, decode(call.semantic)
	case "summarize":
		call.summarize = &summarizeArgs{}
		return call, decode(call.summarize)
	case "answer":
		call.answer = &answerArgs{}
		return call, decode(call.answer)
	case "list_files":
		call.listFiles = &searchArgs{Limit: 10}
		return call, decode(call.listFiles)
	case "get_entities":
		call.getEntities = &entitiesArgs{}
		return call, decode(call.getEntities)
	default:
		return call, fmt.Errorf("unknown tool %q", step.Tool)
	}
}

// QueryPlanned runs the multi-step path: plan, execute honoring
// depends_on, compose. A step whose dependency failed is marked failed
// without running; independent steps continue. Without a backend, or
// when planning itself fails, the simple Query path is the fallback.
func (o *Orchestrator) QueryPlanned(ctx context.Context, question string) (PlannedAnswer, error) {
	model := o.cfg.Tiers.Route("powerful")
	if o.backend == nil {
		simple, err := o.Query(ctx, question)
		if err != nil {
			return PlannedAnswer{}, err
		}
		return PlannedAnswer{Answer: simple.Answer, ModelUsed: simple.ModelUsed}, nil
	}

	planCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()
	raw, err := o.backend.Generate(planCtx, Request{
		Model:  model,
		Prompt: fmt.Sprintf(planPrompt, question),
	})
	if err != nil {
		o.logger.Warn("planning failed, falling back to single-shot query", zap.Error(err))
		simple, qerr := o.Query(ctx, question)
		if qerr != nil {
			return PlannedAnswer{}, qerr
		}
		return PlannedAnswer{Answer: simple.Answer, ModelUsed: simple.ModelUsed}, nil
	}

	steps, err := parsePlan(raw)
	if err != nil {
		o.logger.Warn("plan unparseable, falling back to single-shot query", zap.Error(err))
		simple, qerr := o.Query(ctx, question)
		if qerr != nil {
			return PlannedAnswer{}, qerr
		}
		return PlannedAnswer{Answer: simple.Answer, ModelUsed: simple.ModelUsed}, nil
	}

	return o.executePlan(ctx, question, model, steps)
}

func parsePlan(raw string) ([]PlanStep, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in plan")
	}
	var steps []PlanStep
	if err := json.Unmarshal([]byte(raw[start:end+1]), &steps); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("empty plan")
	}
	return steps, nil
}

func (o *Orchestrator) executePlan(ctx context.Context, question, model string, steps []PlanStep) (PlannedAnswer, error) {
	out := PlannedAnswer{ModelUsed: model}
	results := make(map[string]string, len(steps))
	failed := make(map[string]bool, len(steps))

	var finalAnswer string
	var bestResult string

	for _, step := range steps {
		status := StepStatus{ID: step.ID, Tool: step.Tool}

		blocked := false
		for _, dep := range step.DependsOn {
			if failed[dep] {
				blocked = true
				break
			}
		}
		if blocked {
			status.Failed = true
			status.Error = "dependency failed"
			failed[step.ID] = true
			out.Steps = append(out.Steps, status)
			continue
		}

		result, err := o.executeStep(ctx, question, step, results)
		if err != nil {
			status.Failed = true
			status.Error = err.Error()
			failed[step.ID] = true
		} else {
			status.Result = preview(result)
			results[step.ID] = result
			if step.Tool == "answer" {
				finalAnswer = result
			} else if bestResult == "" && result != "" {
				bestResult = result
			}
		}
		out.Steps = append(out.Steps, status)
	}

	switch {
	case finalAnswer != "":
		out.Answer = finalAnswer
	case bestResult != "":
		out.Answer = "I couldn't complete the full plan; the most relevant result was:\n\n" + preview(bestResult)
	default:
		out.Answer = offlineAnswer
	}
	return out, nil
}

func (o *Orchestrator) executeStep(ctx context.Context, question string, step PlanStep, results map[string]string) (string, error) {
	call, err := parseToolCall(step)
	if err != nil {
		return "", err
	}

	switch {
	case call.search != nil:
		hits, err := o.engine.Search(ctx, orQuestion(call.search.Query, question), "", call.search.Limit)
		if err != nil {
			return "", err
		}
		return renderSearchResults(hits), nil

	case call.semantic != nil:
		hits, err := o.engine.SemanticSearch(ctx, orQuestion(call.semantic.Query, question), call.semantic.Limit)
		if err != nil {
			return "", err
		}
		records := make([]storage.ContentRecord, len(hits))
		for i, hit := range hits {
			records[i] = hit.Record
		}
		return FormatContext(records), nil

	case call.listFiles != nil:
		return o.renderFileSearch(ctx, orQuestion(call.listFiles.Query, question), call.listFiles.Limit)

	case call.getEntities != nil:
		mentions, err := o.engine.Entities(ctx, storage.EntityKind(call.getEntities.Kind), 25)
		if err != nil {
			return "", err
		}
		var names []string
		seen := make(map[string]struct{})
		for _, m := range mentions {
			if _, dup := seen[m.Text]; dup {
				continue
			}
			seen[m.Text] = struct{}{}
			names = append(names, m.Text)
		}
		return strings.Join(names, ", "), nil

	case call.summarize != nil:
		source := results[call.summarize.Step]
		if source == "" {
			return "", fmt.Errorf("summarize references step %q with no result", call.summarize.Step)
		}
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
		return o.backend.Generate(callCtx, Request{
			Model:  o.cfg.Tiers.Route("fast"),
			Prompt: "Summarize the following in a few sentences:\n\n" + source,
		})

	case call.answer != nil:
		if call.answer.Text != "" {
			return call.answer.Text, nil
		}
		// Compose the answer from the evidence steps.
		var evidence []string
		for _, id := range call.answer.From {
			if r := results[id]; r != "" {
				evidence = append(evidence, r)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
		return o.backend.Generate(callCtx, Request{
			Model:  o.cfg.Tiers.Route("balanced"),
			System: systemPrompt,
			Prompt: fmt.Sprintf("Context:\n%s\n\nQuestion: %s",
				strings.Join(evidence, "\n\n"), question),
		})
	}
	return "", fmt.Errorf("unhandled tool %q", step.Tool)
}

func (o *Orchestrator) renderFileSearch(ctx context.Context, query string, limit int) (string, error) {
	events, err := o.engine.SearchFiles(ctx, query, limit)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "No matching files.", nil
	}
	lines := make([]string, len(events))
	for i, ev := range events {
		lines[i] = fmt.Sprintf("%s (%s, %s)", ev.FilePath, ev.Operation, ev.CapturedAt.UTC().Format("2006-01-02"))
	}
	return strings.Join(lines, "\n"), nil
}

func renderSearchResults(hits []storage.SearchResult) string {
	records := make([]storage.ContentRecord, len(hits))
	for i, hit := range hits {
		records[i] = hit.Record
	}
	return FormatContext(records)
}

func orQuestion(query, question string) string {
	if strings.TrimSpace(query) == "" {
		return question
	}
	return query
}

func preview(text string) string {
	const max = 300
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}
