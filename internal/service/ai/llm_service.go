package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/rag-voice/backend/internal/config"
)

const (
	systemPrompt = "You are an AI assistant. Answer the following question based on the provided context."
	userPrompt   = "Context:\n{context}\n\nQuestion:\n{query}\n\nProvide a concise, clear, and informative answer."

	// noContext 检索为空且无历史时填入的占位
	noContext = "(no context available)"
)

// ErrEmptyAnswer 模型返回空白内容
var ErrEmptyAnswer = errors.New("model returned an empty answer")

// Service encapsulates grounded answer generation
type Service struct {
	chatModel model.BaseChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the chat model selected by cfg.Provider and wires the chain
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := newChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel wires the prompt chain around an existing chat model
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

func newChatModel(ctx context.Context, cfg config.AIConfig) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiChatModel(ctx, cfg)
	default:
		return cfg.NewChatModel(ctx)
	}
}

// Generate answers query grounded on passages. Empty passages still yield
// an answer; the prompt states that nothing was retrieved.
func (s *Service) Generate(ctx context.Context, query, passages string) (string, error) {
	response, err := s.chain.Invoke(ctx, buildChainInput(query, passages))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	answer := ""
	if response != nil {
		answer = strings.TrimSpace(response.Content)
	}
	if answer == "" {
		return "", ErrEmptyAnswer
	}

	log.Printf("[ai] provider=%s context=%d answer=%d", s.cfg.Provider, len(passages), len(answer))
	return answer, nil
}

func buildChainInput(query, passages string) map[string]any {
	passages = strings.TrimSpace(passages)
	if passages == "" {
		passages = noContext
	}
	return map[string]any{
		"context": passages,
		"query":   strings.TrimSpace(query),
	}
}
