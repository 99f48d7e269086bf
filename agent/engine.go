// Package agent runs one conversational turn: model reasoning, tool
// dispatch through the intercepted approval tools, and the fallback sentinel
// pass that catches gated actions the model failed to route.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/plaudehq/opsgate/internal/jsonutil"
	"github.com/plaudehq/opsgate/llm"
	"github.com/plaudehq/opsgate/sentinel"
	"github.com/plaudehq/opsgate/tools"
	"github.com/plaudehq/opsgate/tools/ops"
)

const defaultMaxSteps = 6

type Engine struct {
	client   llm.Client
	registry *tools.Registry
	sentinel *sentinel.Sentinel
	log      *slog.Logger
	model    string
	maxSteps int
}

type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

func WithSentinel(s *sentinel.Sentinel) Option {
	return func(e *Engine) { e.sentinel = s }
}

func WithModel(model string) Option {
	return func(e *Engine) { e.model = strings.TrimSpace(model) }
}

func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

func New(client llm.Client, registry *tools.Registry, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		registry: registry,
		log:      slog.Default(),
		maxSteps: defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// modelDecision is the JSON envelope used when a provider cannot return
// structured tool calls and emits them as text instead.
type modelDecision struct {
	Type     string `json:"type"`
	ToolCall *struct {
		Thought    string         `json:"thought,omitempty"`
		ToolName   string         `json:"tool_name"`
		ToolParams map[string]any `json:"tool_params,omitempty"`
	} `json:"tool_call,omitempty"`
	Final *struct {
		Thought string `json:"thought,omitempty"`
		Output  string `json:"output"`
	} `json:"final,omitempty"`
}

// Turn executes one user turn. It never blocks on a human decision: a gated
// action comes back as a pending approval inside the outcome, and the turn
// ends immediately.
func (e *Engine) Turn(ctx context.Context, history []llm.Message) (TurnOutcome, error) {
	if e == nil || e.client == nil {
		return TurnOutcome{}, fmt.Errorf("engine is not configured")
	}

	turnID := uuid.NewString()
	lastUserText := lastUserMessage(history)
	lang := sentinel.DetectLanguage(lastUserText)
	log := e.log.With("turn_id", turnID)

	st := ops.NewTurnState(lastUserText)
	ctx = ops.WithTurnState(ctx, st)

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: buildSystemPrompt(lang, lastUserText)})
	messages = append(messages, history...)

	replyText, err := e.runLoop(ctx, log, messages)
	if err != nil {
		// The conversation must survive model failures; degrade to an
		// apologetic reply and let the sentinel still inspect the turn.
		log.Error("turn_llm_error", "error", err.Error())
		replyText = ""
	}
	replyText = stripToolCallMarkup(replyText)

	outcome := TurnOutcome{ReplyText: replyText}

	if e.sentinel != nil {
		if sres := e.sentinel.Check(ctx, lastUserText, st.GateInvoked()); sres.Fired {
			outcome.ReplyText = sres.Reply
			outcome.ApprovalRequired = true
			id := sres.ApprovalID
			outcome.ApprovalID = &id
		}
	}

	if !outcome.ApprovalRequired && st.GateInvoked() {
		outcome.ApprovalRequired = true
		if id, _ := st.ApprovalID(); id != "" {
			v := id
			outcome.ApprovalID = &v
		}
	}

	if strings.TrimSpace(outcome.ReplyText) == "" {
		outcome.ReplyText = sentinel.EmptyReplyFallback(lang)
	}

	log.Info("turn_done",
		"approval_required", outcome.ApprovalRequired,
		"reply_len", len(outcome.ReplyText),
	)
	return outcome, nil
}

func (e *Engine) runLoop(ctx context.Context, log *slog.Logger, messages []llm.Message) (string, error) {
	for step := 0; step < e.maxSteps; step++ {
		res, err := e.client.Chat(ctx, llm.Request{
			Model:    e.model,
			Messages: messages,
			Tools:    buildLLMTools(e.registry),
			Parameters: map[string]any{
				"temperature": 0,
			},
		})
		if err != nil {
			return "", err
		}

		calls := res.ToolCalls
		if len(calls) == 0 {
			if dec, ok := decodeDecision(res.Text); ok {
				if dec.Type == "tool_call" && dec.ToolCall != nil {
					calls = []llm.ToolCall{{
						Name:      dec.ToolCall.ToolName,
						Arguments: dec.ToolCall.ToolParams,
					}}
				} else if dec.Type == "final" && dec.Final != nil {
					return dec.Final.Output, nil
				}
			}
		}
		if len(calls) == 0 {
			return res.Text, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   res.Text,
			ToolCalls: calls,
		})
		for _, call := range calls {
			observation := e.dispatch(ctx, log, call)
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    observation,
			})
		}
	}
	return "", fmt.Errorf("turn exceeded %d steps", e.maxSteps)
}

func (e *Engine) dispatch(ctx context.Context, log *slog.Logger, call llm.ToolCall) string {
	name := strings.TrimSpace(call.Name)
	tool, ok := e.registry.Get(name)
	if !ok {
		log.Warn("unknown_tool_call", "tool", name)
		return fmt.Sprintf("error: unknown tool %q", name)
	}
	out, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		log.Warn("tool_error", "tool", name, "error", err.Error())
		return "error: " + err.Error()
	}
	log.Info("tool_call", "tool", name)
	return out
}

func decodeDecision(text string) (modelDecision, bool) {
	var dec modelDecision
	if err := jsonutil.DecodeWithFallback(text, &dec); err != nil {
		return modelDecision{}, false
	}
	return dec, dec.Type != ""
}

func buildLLMTools(registry *tools.Registry) []llm.Tool {
	if registry == nil {
		return nil
	}
	all := registry.All()
	if len(all) == 0 {
		return nil
	}
	out := make([]llm.Tool, 0, len(all))
	for _, t := range all {
		name := strings.TrimSpace(t.Name())
		if name == "" {
			continue
		}
		out = append(out, llm.Tool{
			Name:           name,
			Description:    strings.TrimSpace(t.Description()),
			ParametersJSON: strings.TrimSpace(t.ParameterSchema()),
		})
	}
	return out
}

func lastUserMessage(history []llm.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if strings.EqualFold(strings.TrimSpace(history[i].Role), "user") {
			return history[i].Content
		}
	}
	return ""
}
