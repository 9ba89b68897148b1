package llm

import (
	"context"
	"fmt"
	"strings"

	loremgen "github.com/bozaro/golorem"
)

// LoremProvider is a mock generator producing lorem ipsum text. It needs
// no API key and is the default in development and tests.
type LoremProvider struct {
	generator *loremgen.Lorem
}

func NewLoremProvider() *LoremProvider {
	return &LoremProvider{generator: loremgen.New()}
}

func (p *LoremProvider) Name() string {
	return "lorem"
}

// SupportsModel returns true for models named "lorem-*".
func (p *LoremProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

func (p *LoremProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by lorem provider", req.Model)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	// 1 token is roughly 4 characters.
	text := p.generateText(int(maxTokens) * 4)

	return &GenerateResponse{
		Content:      text,
		Model:        req.Model,
		InputTokens:  int64(len(strings.Fields(req.Prompt))),
		OutputTokens: int64(len(strings.Fields(text))),
		StopReason:   "end_turn",
	}, nil
}

func (p *LoremProvider) generateText(targetChars int) string {
	var sb strings.Builder
	for sb.Len() < targetChars {
		sb.WriteString(p.generator.Paragraph(2, 4))
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
