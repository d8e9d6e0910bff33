package config

// Credentials answers "is this integration configured" without exposing secrets.
type Credentials interface {
	RedditConfigured() bool
	XConfigured() bool
	LinkedInConfigured() bool
	OpenAIConfigured() bool
}

func (c Config) RedditConfigured() bool {
	return c.Reddit.ClientID != "" && c.Reddit.ClientSecret != ""
}

func (c Config) XConfigured() bool {
	return c.X.BearerToken != ""
}

func (c Config) LinkedInConfigured() bool {
	return c.LinkedIn.AccessToken != "" && c.LinkedIn.PersonURN != ""
}

func (c Config) OpenAIConfigured() bool {
	return c.LLM != nil && c.LLM.APIKey != ""
}

// StaticCredentials is a fixed answer set, handy for tests and dry runs.
type StaticCredentials struct {
	Reddit, X, LinkedIn, OpenAI bool
}

func (s StaticCredentials) RedditConfigured() bool   { return s.Reddit }
func (s StaticCredentials) XConfigured() bool        { return s.X }
func (s StaticCredentials) LinkedInConfigured() bool { return s.LinkedIn }
func (s StaticCredentials) OpenAIConfigured() bool   { return s.OpenAI }
