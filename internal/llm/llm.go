// Package llm wraps the Anthropic API for listing improvement suggestions.
// It implements the analyzer's Suggester contract; everything it produces is
// advisory and callers drop its output on any failure.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mcpdir/mcpdir/internal/models"
)

// Client wraps the Anthropic API for suggestion generation.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for suggestion
// generation.
func buildPrompt(candidate *models.Listing) (system string, user string) {
	system = `You review submissions to a community directory of MCP-compatible servers, applications, and tools. Given a submission, return ONLY a JSON array of strings, each a concrete suggestion the submitter could act on to improve the listing.

Rules:
- Suggest at most 4 items, most impactful first
- Each suggestion is one sentence, addressed to the submitter
- Focus on what is missing or unclear: descriptions, links, versioning, requirements, tags
- Do not repeat information the submission already covers well
- Do not comment on the moderation process or predict approval
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Name: ")
	sb.WriteString(candidate.Name)
	sb.WriteString("\nCategory: ")
	sb.WriteString(string(candidate.Category))
	sb.WriteString("\nShort description: ")
	sb.WriteString(candidate.ShortDescription)
	sb.WriteString("\n")
	if candidate.LongDescription != "" {
		sb.WriteString("\nDetailed description:\n")
		sb.WriteString(candidate.LongDescription)
		sb.WriteString("\n")
	}
	if candidate.Requirements != "" {
		sb.WriteString("\nRequirements: ")
		sb.WriteString(candidate.Requirements)
		sb.WriteString("\n")
	}
	if candidate.Version != "" {
		sb.WriteString("Version: ")
		sb.WriteString(candidate.Version)
		sb.WriteString("\n")
	}
	if candidate.License != "" {
		sb.WriteString("License: ")
		sb.WriteString(candidate.License)
		sb.WriteString("\n")
	}
	if len(candidate.Tags) > 0 {
		sb.WriteString("Tags: ")
		sb.WriteString(strings.Join(candidate.Tags, ", "))
		sb.WriteString("\n")
	}
	for kind, url := range candidate.Links {
		sb.WriteString(fmt.Sprintf("Link (%s): %s\n", kind, url))
	}
	user = sb.String()
	return
}

// Suggest sends the candidate to the LLM and returns improvement
// suggestions.
func (c *Client) Suggest(ctx context.Context, candidate *models.Listing) ([]string, error) {
	systemPrompt, userPrompt := buildPrompt(candidate)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	text = stripFencing(text)

	var suggestions []string
	if err := json.Unmarshal([]byte(text), &suggestions); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	return suggestions, nil
}

// stripFencing removes markdown code fencing if present.
func stripFencing(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
