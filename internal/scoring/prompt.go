package scoring

import (
	"fmt"
	"strings"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

const basePrompt = `You are a quality assurance reviewer for customer support conversations.
Read the transcript you are given and reply with a single JSON object and nothing else.
If the transcript cannot be assessed (empty, not a conversation, unreadable), reply with
{"error": "<short reason>"}.`

func systemPrompt(t models.ReviewType, criteria []models.CriterionWeight) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\nThe JSON object has these fields:\n")

	if t.ScoresPerformance() {
		b.WriteString(`- "overallScore": number from 0 to 10, the agent's overall performance
- "overallFeedback": string, two or three sentences
- "criteriaScores": array with one entry per criterion below, each
  {"criterionName": string, "score": integer from 1 to 10, "comment": string, "quote": string, "feedback": string}
`)
	}
	if t.ScoresSentiment() {
		b.WriteString(`- "sentimentScore": number from 0 to 10, the customer's sentiment (0 very negative, 10 very positive)
- "sentimentLabel": one of "negative", "neutral", "positive"
- "sentimentAnalysis": string, one or two sentences
`)
	}
	b.WriteString(`- "subject": string, a short title for the conversation
`)

	if t.ScoresPerformance() && len(criteria) > 0 {
		b.WriteString("\nCriteria (use these names exactly):\n")
		for _, c := range criteria {
			fmt.Fprintf(&b, "- %s (weight %g)", c.Name, c.Weight)
			if c.Description != "" {
				fmt.Fprintf(&b, ": %s", c.Description)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func transcriptPrompt(transcript string) string {
	return "Transcript:\n\"\"\"\n" + strings.TrimSpace(transcript) + "\n\"\"\""
}
