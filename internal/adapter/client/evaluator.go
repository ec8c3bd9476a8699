package client

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// CacheJudge confirms that a semantic-cache hit really answers the same
// question. A cheap model and a structured YES/NO prompt keep the check
// fast and deterministic.
type CacheJudge struct {
	client *genai.Client
	model  string
}

func NewCacheJudge(c *genai.Client, model string) *CacheJudge {
	return &CacheJudge{client: c, model: model}
}

func (j *CacheJudge) IsMatch(ctx context.Context, userPrompt, cachedPrompt string) bool {
	instruction := `You are a semantic intent judge.
Compare the following two user queries.
Are they asking for the same information, even if phrased differently?
- If they have the same intent, respond ONLY with "YES".
- Otherwise respond ONLY with "NO".`

	prompt := fmt.Sprintf("%s\n\nQuery 1: %s\nQuery 2: %s", instruction, userPrompt, cachedPrompt)

	resp, err := j.client.Models.GenerateContent(ctx, j.model, genai.Text(prompt), nil)
	if err != nil {
		return false // treat judge failure as a cache miss
	}

	return strings.Contains(strings.ToUpper(strings.TrimSpace(resp.Text())), "YES")
}
