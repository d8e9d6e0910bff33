package generator

import "auto_linkedin_poster/model"

// Sections 是模型返回的结构化帖子。
type Sections struct {
	Hook     string `json:"hook"`
	Insight  string `json:"insight"`
	Takeaway string `json:"takeaway"`
	CTA      string `json:"cta"`
}

func (s Sections) empty() bool {
	return s.Hook == "" && s.Insight == "" && s.Takeaway == "" && s.CTA == ""
}

// Limits bounds the drafted content, counted in characters.
// MaxLength is the platform hard limit; Min/Target only steer the prompt.
type Limits struct {
	MinLength    int
	TargetLength int
	MaxLength    int
}

// Draft is one attempt, before it is stored.
type Draft struct {
	Sections Sections
	Content  string
	// Regenerated is set when the first attempt was too long.
	Regenerated bool
	Truncated   bool
}

func topicURLs(topics []model.Topic) []string {
	urls := make([]string, 0, len(topics))
	for _, t := range topics {
		if t.URL != "" {
			urls = append(urls, t.URL)
		}
	}
	return urls
}
