// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/pdiddy/citation-manager/internal/httputil"
	"github.com/pdiddy/citation-manager/pkg/types"
)

// backend sends one prompt for a named task and returns the model's text.
type backend interface {
	Name() string
	Complete(ctx context.Context, task, prompt string) (string, error)
}

// wrapperBackend talks to the platform's LLM wrapper agent using the shared
// envelope protocol.
type wrapperBackend struct {
	url    string
	client *http.Client
}

func newWrapperBackend(host string, port int) *wrapperBackend {
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 5010
	}
	return &wrapperBackend{
		url:    "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/process",
		client: &http.Client{},
	}
}

func (w *wrapperBackend) Name() string { return "wrapper" }

func (w *wrapperBackend) Complete(ctx context.Context, task, prompt string) (string, error) {
	env := types.TaskEnvelope{
		MessageID: uuid.NewString(),
		Sender:    types.AgentName,
		Recipient: types.WrapperAgentName,
		Task: types.Task{
			Name:       task,
			Parameters: map[string]any{"request": prompt},
		},
	}
	var report types.CompletionReport
	if err := httputil.PostJSON(ctx, w.client, w.url, env, &report); err != nil {
		return "", fmt.Errorf("calling LLM wrapper: %w", err)
	}
	return report.Results.Output, nil
}

// openaiBackend uses an OpenAI-compatible chat completion API.
type openaiBackend struct {
	client *openai.Client
	model  string
}

func newOpenAIBackend(cfg types.LLMConfig) (*openaiBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &openaiBackend{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

func (o *openaiBackend) Name() string { return "openai" }

func (o *openaiBackend) Complete(ctx context.Context, _ string, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
