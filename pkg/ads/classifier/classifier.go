package classifier

import (
	"context"
	"strings"

	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/pkg/ads/prompt"
	"ad-chat-be/pkg/llm"
)

// DefaultSampleLimit caps how many category names go into the prompt. It bounds
// prompt size; categories past the cap can still be reached by the matcher's fallback.
const DefaultSampleLimit = 100

// Classifier labels a user message with one catalog category name.
type Classifier struct {
	provider    llm.LLMProvider
	logger      logger.ILogger
	sampleLimit int
}

func NewClassifier(provider llm.LLMProvider, log logger.ILogger, sampleLimit int) *Classifier {
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}
	return &Classifier{
		provider:    provider,
		logger:      log,
		sampleLimit: sampleLimit,
	}
}

// Classify makes one generation call and returns its trimmed answer. It never
// fails: any upstream error degrades to prompt.UnknownTopic.
func (c *Classifier) Classify(ctx context.Context, text string, categories []string) string {
	sample := categories
	if len(sample) > c.sampleLimit {
		sample = sample[:c.sampleLimit]
	}

	label, err := c.provider.Generate(ctx, prompt.Topics(strings.Join(sample, ", ")), text, llm.WithTemperature(0))
	if err != nil {
		c.logger.Error("CLASSIFIER", "Category extraction failed", map[string]interface{}{
			"error": err.Error(),
		})
		return prompt.UnknownTopic
	}

	label = strings.TrimSpace(label)
	if label == "" {
		return prompt.UnknownTopic
	}
	return label
}
