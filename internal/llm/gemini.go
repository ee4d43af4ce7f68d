package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"toolforge/internal/logging"
)

// maxToolRounds bounds the Answer tool-calling loop. The engine has its own
// iteration ceiling; this one only guards a single execution attempt.
const maxToolRounds = 8

// Gemini implements Client on top of the Google GenAI SDK.
type Gemini struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGemini creates a Gemini-backed collaborator.
func NewGemini(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model, logger: logging.OrNop(logger)}, nil
}

var planSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"steps": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"needed_tools": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":         {Type: genai.TypeString, Description: "snake_case identifier"},
					"description":  {Type: genai.TypeString},
					"dependencies": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
					"needs_review": {Type: genai.TypeBoolean},
				},
				Required: []string{"name", "description"},
			},
		},
		"explanation": {Type: genai.TypeString},
	},
	Required: []string{"steps", "needed_tools", "explanation"},
}

var codeSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"code":         {Type: genai.TypeString},
		"dependencies": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"code"},
}

var reviewSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"tool_valid":        {Type: genai.TypeBoolean},
		"tool_updated":      {Type: genai.TypeBoolean},
		"tool_issues":       {Type: genai.TypeString},
		"updated_tool_code": {Type: genai.TypeString},
	},
	Required: []string{"tool_valid", "tool_updated"},
}

var envelopeSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"final_result": {Type: genai.TypeString},
		"error": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"tool_name":     {Type: genai.TypeString},
				"error_message": {Type: genai.TypeString},
				"needs_review":  {Type: genai.TypeBoolean},
				"classifier":    {Type: genai.TypeString},
			},
		},
	},
	Required: []string{"final_result"},
}

// generateJSON runs one structured-output round trip and decodes into out.
func (g *Gemini) generateJSON(ctx context.Context, system string, user []string, schema *genai.Schema, temperature float32, out any) error {
	contents := make([]*genai.Content, 0, len(user))
	for _, u := range user {
		contents = append(contents, genai.NewContentFromText(u, genai.RoleUser))
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(temperature),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	})
	if err != nil {
		return fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return fmt.Errorf("model returned empty response")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode structured response: %w", err)
	}
	return nil
}

// Plan implements Client.
func (g *Gemini) Plan(ctx context.Context, userRequest, availableTools, feedback string) (*PlanResponse, error) {
	user := []string{
		userRequest,
		"Available tools:\n" + availableTools,
	}
	if feedback != "" {
		user = append(user, "The user rejected the previous plan with this feedback:\n"+feedback)
	}
	var plan PlanResponse
	if err := g.generateJSON(ctx, plannerPrompt, user, planSchema, 0.5, &plan); err != nil {
		return nil, fmt.Errorf("plan project: %w", err)
	}
	if plan.Explanation == "" && len(plan.NeededTools) == 0 {
		return nil, ErrEmptyPlan
	}
	g.logger.Debug("planner responded",
		zap.Int("steps", len(plan.Steps)),
		zap.Int("needed_tools", len(plan.NeededTools)))
	return &plan, nil
}

// GenerateTool implements Client.
func (g *Gemini) GenerateTool(ctx context.Context, name, description, planExplanation string) (*CodeResponse, error) {
	system := fmt.Sprintf(coderPrompt, codeRules)
	if planExplanation != "" {
		system += "\nPROJECT PLAN: " + planExplanation
	}
	user := []string{fmt.Sprintf("Tool_Name: %s\nTool_Description: %s", name, description)}
	var code CodeResponse
	if err := g.generateJSON(ctx, system, user, codeSchema, 0.5, &code); err != nil {
		return nil, fmt.Errorf("generate tool %s: %w", name, err)
	}
	if code.Code == "" {
		return nil, fmt.Errorf("generate tool %s: model returned no code", name)
	}
	return &code, nil
}

// ReviewTool implements Client.
func (g *Gemini) ReviewTool(ctx context.Context, code, planExplanation, failureText, userIssues string) (*ReviewResponse, error) {
	system := fmt.Sprintf(reviewerPrompt, codeRules)
	if planExplanation != "" {
		system += "\nPROJECT PLAN: " + planExplanation
	}
	user := []string{code}
	if failureText != "" {
		user = append(user, "The tool had the following failure:\n"+failureText)
	}
	if userIssues != "" {
		user = append(user, "The user would also like the following changes or issues addressed:\n"+userIssues)
	}
	var review ReviewResponse
	if err := g.generateJSON(ctx, system, user, reviewSchema, 0.25, &review); err != nil {
		return nil, fmt.Errorf("review tool: %w", err)
	}
	return &review, nil
}

// Answer implements Client: a function-calling loop over the bound tools.
func (g *Gemini) Answer(ctx context.Context, userRequest string, tools []ToolBinding) (string, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	byName := make(map[string]ToolBinding, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  &genai.Schema{Type: genai.TypeObject},
		})
		byName[t.Name] = t
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(answerPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.5),
		Tools:             []*genai.Tool{{FunctionDeclarations: decls}},
	}

	history := []*genai.Content{genai.NewContentFromText(userRequest, genai.RoleUser)}
	for round := 0; round < maxToolRounds; round++ {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, history, cfg)
		if err != nil {
			return "", fmt.Errorf("answer round %d: %w", round, err)
		}
		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			return resp.Text(), nil
		}
		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			history = append(history, resp.Candidates[0].Content)
		}
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			binding, ok := byName[call.Name]
			var payload map[string]any
			if !ok {
				payload = map[string]any{"error": fmt.Sprintf("unknown tool %q", call.Name)}
			} else {
				out, err := binding.Invoke(call.Args)
				if err != nil {
					payload = map[string]any{"error": err.Error()}
				} else {
					payload = map[string]any{"output": out}
				}
			}
			g.logger.Debug("tool invoked", zap.String("tool", call.Name))
			parts = append(parts, genai.NewPartFromFunctionResponse(call.Name, payload))
		}
		history = append(history, genai.NewContentFromParts(parts, genai.RoleUser))
	}
	return "", fmt.Errorf("tool-calling loop exceeded %d rounds", maxToolRounds)
}

// ExtractResult implements Client.
func (g *Gemini) ExtractResult(ctx context.Context, raw string) (*ResultEnvelope, error) {
	var env ResultEnvelope
	if err := g.generateJSON(ctx, extractorPrompt, []string{raw}, envelopeSchema, 0, &env); err != nil {
		return nil, fmt.Errorf("extract result: %w", err)
	}
	if env.FinalResult == "" && env.Error == nil {
		return nil, fmt.Errorf("extract result: empty envelope")
	}
	return &env, nil
}

// FormatOutput implements Client.
func (g *Gemini) FormatOutput(ctx context.Context, userRequest, data, format string) (string, error) {
	user := []string{
		"Original User Request: " + userRequest,
		"Data: \n" + data,
	}
	contents := make([]*genai.Content, 0, len(user))
	for _, u := range user {
		contents = append(contents, genai.NewContentFromText(u, genai.RoleUser))
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(FormatPrompt(format), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("format output: %w", err)
	}
	return resp.Text(), nil
}
