package agentloop

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// ModelTransport is the pluggable "call the model" seam (spec §4.5
// step 4). The default implementation is backed by google.golang.org/genai;
// tests and alternative backends implement the same interface.
type ModelTransport interface {
	Call(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// ModelRequest is the structured prompt assembled in step 3 of the
// iteration protocol.
type ModelRequest struct {
	SystemInstructions string
	TaskDescription    string
	AccumulatedContext string
	LastDiff           string
	BackpressureErrors string
	Tools              []ToolDefinition
}

// GenAITransport is the default ModelTransport, backed by Gemini via
// google.golang.org/genai (grounded on the teacher's embedding.GenAIEngine
// client construction pattern).
type GenAITransport struct {
	client *genai.Client
	model  string
}

// NewGenAITransport constructs a transport against model using apiKey.
func NewGenAITransport(ctx context.Context, apiKey, model string) (*GenAITransport, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("agentloop: model API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("agentloop: model name is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("agentloop: failed to create genai client: %w", err)
	}
	return &GenAITransport{client: client, model: model}, nil
}

func (t *GenAITransport) Call(ctx context.Context, req ModelRequest) (ModelResponse, error) {
	prompt := assemblePrompt(req)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstructions, genai.RoleUser),
		Tools:             toGenAITools(req.Tools),
	}

	result, err := t.client.Models.GenerateContent(ctx, t.model, contents, config)
	if err != nil {
		return ModelResponse{}, fmt.Errorf("agentloop: model call failed: %w", err)
	}
	return parseGenAIResponse(result), nil
}

func assemblePrompt(req ModelRequest) string {
	prompt := req.TaskDescription
	if req.AccumulatedContext != "" {
		prompt += "\n\n## Accumulated context\n" + req.AccumulatedContext
	}
	if req.LastDiff != "" {
		prompt += "\n\n## Last iteration diff\n" + req.LastDiff
	}
	if req.BackpressureErrors != "" {
		prompt += "\n\n## Unresolved backpressure errors\n" + req.BackpressureErrors
	}
	return prompt
}

func toGenAITools(defs []ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  schemaFromMap(d.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func schemaFromMap(m map[string]interface{}) *genai.Schema {
	if m == nil {
		return nil
	}
	schema := &genai.Schema{Type: genai.TypeObject}
	props, _ := m["properties"].(map[string]interface{})
	if len(props) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name := range props {
			schema.Properties[name] = &genai.Schema{Type: genai.TypeString}
		}
	}
	return schema
}

func parseGenAIResponse(result *genai.GenerateContentResponse) ModelResponse {
	var resp ModelResponse
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return resp
	}
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			resp.Thinking += part.Text
		}
		if part.FunctionCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				Name:  part.FunctionCall.Name,
				Input: part.FunctionCall.Args,
			})
		}
	}
	if result.UsageMetadata != nil {
		resp.Usage = UsageMetadata{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return resp
}
