package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// narrationEnhancer implements NarrationEnhancer using OpenAI
type narrationEnhancer struct {
	client *openai.Client
	model  string
}

// System prompt for safety alert narration
const systemPrompt = `You are a navigation voice assistant. Your task is to turn structured crime-risk alerts into a single short spoken sentence for a traveler in motion.

Instructions:
- The sentence must be speakable in under 5 seconds (max 120 characters).
- Mention the crime category in plain words and the rough distance ahead.
- Round distances to something natural ("about 300 meters ahead", "just ahead").
- Never mention severity numbers, IDs, or coordinates.
- Do not tell the traveler to stop or turn around; suggest awareness only.
- Pick an urgency level from the severity: 1-2 notice, 3-4 caution, 5 danger.

Return valid JSON with these exact fields:
- text (string) - the spoken sentence, max 120 chars
- urgency (enum) - "notice" | "caution" | "danger"

Good examples:
- Heads up, a theft hotspot is about 400 meters ahead on your route.
- Caution, repeated assaults reported just ahead, stay aware of your surroundings.

Bad examples:
- Alert hs-0042: severity 4 robbery at 37.77,-122.41 (includes IDs and coordinates)
- STOP! Danger ahead! (alarmist, no useful detail)`

// NewNarrationEnhancer creates a NarrationEnhancer backed by OpenAI.
func NewNarrationEnhancer(apiKey, model string) NarrationEnhancer {
	if apiKey == "" {
		return &narrationEnhancer{client: nil, model: model} // Will cause errors - for testing
	}

	return &narrationEnhancer{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// EnhanceAlert generates a speakable narration for a raw alert.
func (n *narrationEnhancer) EnhanceAlert(ctx context.Context, raw RawAlert) (EnhancedNarration, error) {
	if n.client == nil {
		return EnhancedNarration{}, errors.New("OpenAI client not initialized - invalid API key")
	}

	userPrompt := fmt.Sprintf(`Narrate this crime-risk alert as one spoken sentence and return JSON:

Crime type: %s
Severity (1-5): %d
Distance ahead: %.0f meters
Location hint: %s`,
		raw.CrimeType, raw.Severity, raw.DistanceMeters, raw.LocationHint)

	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: n.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3, // Lower temperature for more consistent output
		MaxTokens:   200,
	})

	if err != nil {
		return EnhancedNarration{}, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return EnhancedNarration{}, errors.New("no response from OpenAI API")
	}

	var structured struct {
		Text    string `json:"text"`
		Urgency string `json:"urgency"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &structured); err != nil {
		return EnhancedNarration{}, fmt.Errorf("failed to parse OpenAI JSON response: %w", err)
	}

	// Validate fields, fall back to templated output where invalid
	if structured.Text == "" || len(structured.Text) > 120 {
		structured.Text = FallbackNarration(raw)
	}
	if !isValidUrgency(structured.Urgency) {
		structured.Urgency = UrgencyForSeverity(raw.Severity)
	}

	return EnhancedNarration{
		ID:          raw.ID,
		Text:        structured.Text,
		Urgency:     structured.Urgency,
		ProcessedAt: time.Now(),
	}, nil
}

// HealthCheck verifies OpenAI API connectivity.
func (n *narrationEnhancer) HealthCheck(ctx context.Context) error {
	if n.client == nil {
		return errors.New("OpenAI client not initialized")
	}

	_, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: n.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Test",
			},
		},
		MaxTokens: 1,
	})

	if err != nil {
		return fmt.Errorf("OpenAI API health check failed: %w", err)
	}
	return nil
}

// FallbackNarration builds a templated narration when the language
// model is unavailable or returns something unusable.
func FallbackNarration(raw RawAlert) string {
	crimeType := raw.CrimeType
	if crimeType == "" || crimeType == "unspecified" {
		crimeType = "safety"
	}

	distance := raw.DistanceMeters
	if distance < 100 {
		return fmt.Sprintf("Caution, %s hotspot just ahead on your route.", crimeType)
	}
	// Round to the nearest 100m for speakability
	rounded := int(distance/100+0.5) * 100
	return fmt.Sprintf("Heads up, %s hotspot about %d meters ahead on your route.", crimeType, rounded)
}

// UrgencyForSeverity maps a 1-5 severity to an urgency level.
func UrgencyForSeverity(severity int) string {
	switch {
	case severity >= 5:
		return UrgencyDanger
	case severity >= 3:
		return UrgencyCaution
	default:
		return UrgencyNotice
	}
}

func isValidUrgency(urgency string) bool {
	switch urgency {
	case UrgencyNotice, UrgencyCaution, UrgencyDanger:
		return true
	}
	return false
}
