package generator

import (
	"fmt"
	"strings"

	"auto_linkedin_poster/model"
)

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	System  string
	User    string
	History []Message
}

// Message 用于少量历史（可选）。
type Message struct {
	Role    string
	Content string
}

const systemPrompt = `You are an expert Android developer and LinkedIn content creator. Generate engaging LinkedIn posts about Android development trends.

Rules:
1. Never copy text verbatim from sources.
2. Write original insights in a professional tone.
3. Focus on value for Android developers.

Structure:
- hook: attention-grabbing opening (1-2 lines)
- insight: main technical insight or trend analysis (3-4 lines)
- takeaway: practical advice or key learning (2-3 lines)
- cta: call to action encouraging discussion (1 line), may include hashtags such as #AndroidDev #Kotlin

Reply with JSON only: {"hook": "...", "insight": "...", "takeaway": "...", "cta": "..."}`

// BuildPostPrompt 生成首稿提示词。
func BuildPostPrompt(topics []model.Topic, limits Limits) Prompt {
	var sb strings.Builder
	sb.WriteString("Create a LinkedIn post based on these trending Android development topics:\n\n")
	for i, t := range topics {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, t.Title))
		if t.Content != "" {
			sb.WriteString(fmt.Sprintf("   Context: %s\n", truncateRunes(t.Content, 200)))
		}
		sb.WriteString(fmt.Sprintf("   Engagement: %.0f points, %d comments\n", t.Score, t.Engagement))
		sb.WriteString(fmt.Sprintf("   Source: %s\n\n", t.Source))
	}
	sb.WriteString(fmt.Sprintf("Target length: %d-%d characters in total.\n", limits.MinLength, limits.TargetLength))
	sb.WriteString("Create an original post that synthesizes these trends. Do not copy text directly.")

	return Prompt{System: systemPrompt, User: sb.String()}
}

// BuildTighterPrompt 在首稿超长时生成更严格的修订提示词。
func BuildTighterPrompt(prev Prompt, previous string, got, budget int) Prompt {
	user := fmt.Sprintf(
		"Your previous draft was %d characters, the hard limit for the four sections together is %d characters. "+
			"Rewrite it shorter, keep the same JSON structure and the key insight, drop secondary details.",
		got, budget)
	history := append([]Message(nil), prev.History...)
	history = append(history,
		Message{Role: "user", Content: prev.User},
		Message{Role: "assistant", Content: previous},
	)
	return Prompt{System: prev.System, User: user, History: history}
}
