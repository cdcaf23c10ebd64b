package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/model"
)

const defaultModel = "gemini-2.5-flash"

// Gemini generates quests and coach replies with the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini generator from cfg.
func NewGemini(ctx context.Context, cfg config.AIConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ai: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: create gemini client: %w", err)
	}
	m := cfg.Model
	if m == "" {
		m = defaultModel
	}
	return &Gemini{client: client, model: m, timeout: cfg.Timeout}, nil
}

func (g *Gemini) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// GenerateQuests asks the model for 5-7 quests shaped by questSchema.
func (g *Gemini) GenerateQuests(ctx context.Context, skills []string) ([]QuestDraft, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(questPrompt(skills)), questConfig(skills))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	drafts, err := parseDrafts(resp.Text())
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

// Chat continues a coach conversation.
func (g *Gemini) Chat(ctx context.Context, history []ChatMessage, message string) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(chatPrompt(history, message)), chatConfig())
	if err != nil {
		return "", fmt.Errorf("ai: chat: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func questConfig(skills []string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   questSchema(skills),
	}
}

func questSchema(skills []string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":       {Type: genai.TypeString},
				"description": {Type: genai.TypeString},
				"type":        {Type: genai.TypeString, Enum: append([]string(nil), skills...)},
				"difficulty": {Type: genai.TypeString, Enum: []string{
					model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard,
				}},
				"xpReward": {Type: genai.TypeInteger},
				"durationMinutes": {
					Type:        genai.TypeInteger,
					Description: "The estimated time in minutes to complete the quest.",
				},
			},
			Required: []string{"title", "description", "type", "difficulty", "xpReward", "durationMinutes"},
		},
	}
}

func chatConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.8),
		TopK:            genai.Ptr[float32](1),
		TopP:            genai.Ptr[float32](1),
		MaxOutputTokens: 256,
		// Stop before the model starts writing turns for either side.
		StopSequences: []string{"user:", "bot:"},
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](0),
		},
	}
}

func parseDrafts(text string) ([]QuestDraft, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	var drafts []QuestDraft
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &drafts); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrGeneration, err)
	}
	return drafts, nil
}
