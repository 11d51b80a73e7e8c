// Package ollama adapts a local Ollama model (via langchaingo) to the generic
// model.Model interface. Local models typically cannot express tool intent
// natively, so the default feature set routes them through the
// prompt-engineered (ReACT) generation strategy; models known to support
// native tool calling can opt in via WithFeatures.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
)

// Options configures the Ollama model adapter.
type Options struct {
	Model     string
	ServerURL string
	Features  []model.Feature
}

// Model wraps a langchaingo Ollama client behind the generic model.Model
// interface.
type Model struct {
	llm  *ollama.LLM
	opts Options
}

// NewModel creates a new Ollama backed model.
func NewModel(optFns ...func(o *Options)) (*Model, error) {
	opts := Options{
		Model:    "llama3",
		Features: []model.Feature{model.FeatureAgentThought},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var llmOpts []ollama.Option
	llmOpts = append(llmOpts, ollama.WithModel(opts.Model))
	if opts.ServerURL != "" {
		llmOpts = append(llmOpts, ollama.WithServerURL(opts.ServerURL))
	}

	llm, err := ollama.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return &Model{llm: llm, opts: opts}, nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.opts.Model,
		Provider: "ollama",
		Features: m.opts.Features,
	}
}

// Generate implements streaming generation. Text deltas arrive through the
// streaming callback; tool calls (when the model supports them natively) are
// only known once the full response is in.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		callOpts := []llms.CallOption{
			llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				select {
				case out <- model.Response{Content: string(chunk)}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		}
		if len(req.Tools) > 0 && m.Info().Supports(model.FeatureToolCall) {
			callOpts = append(callOpts, llms.WithTools(buildTools(req.Tools)))
		}

		resp, err := m.llm.GenerateContent(ctx, buildMessages(req.Messages), callOpts...)
		if err != nil {
			errCh <- fmt.Errorf("ollama generate: %w", err)
			return
		}
		if len(resp.Choices) == 0 {
			out <- model.Response{FinishReason: "stop"}
			return
		}

		choice := resp.Choices[0]
		var calls []core.ToolCall
		for _, tc := range choice.ToolCalls {
			call := core.ToolCall{ID: tc.ID}
			if call.ID == "" {
				call.ID = core.NewID()
			}
			if tc.FunctionCall != nil {
				call.Name = tc.FunctionCall.Name
				call.Args = model.DecodeArgs(tc.FunctionCall.Arguments)
			}
			calls = append(calls, call)
		}

		finish := choice.StopReason
		if finish == "" {
			finish = "stop"
		}
		out <- model.Response{ToolCalls: calls, FinishReason: finish}
	}()

	return out, errCh
}

// buildMessages converts normalized messages to langchaingo message contents.
func buildMessages(messages []core.Message) []llms.MessageContent {
	var out []llms.MessageContent
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case core.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case core.RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Args)
				if err != nil {
					args = []byte("{}")
				}
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, mc)
		case core.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.ToolCallID,
					Name:       msg.Name,
					Content:    msg.Content,
				}},
			})
		default:
			if msg.Content != "" {
				out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
			}
		}
	}
	return out
}

// buildTools converts tool definitions to langchaingo tools.
func buildTools(tools []model.ToolDefinition) []llms.Tool {
	out := make([]llms.Tool, len(tools))
	for i, tdef := range tools {
		out[i] = llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tdef.Name,
				Description: tdef.Description,
				Parameters:  tdef.Parameters,
			},
		}
	}
	return out
}
