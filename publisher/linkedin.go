package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"

	"auto_linkedin_poster/config"
)

const linkedInAPIURL = "https://api.linkedin.com/v2"

// Platform is the publish target.
type Platform interface {
	Configured() bool
	Post(ctx context.Context, text string) (string, error)
}

type shareCommentary struct {
	Text string `json:"text"`
}

type shareContent struct {
	ShareCommentary    shareCommentary `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
}

type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

// LinkedIn posts text shares through the UGC API.
type LinkedIn struct {
	cfg     config.LinkedInConfig
	apiURL  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewLinkedIn(cfg config.LinkedInConfig, apiURL string, client *http.Client) *LinkedIn {
	if apiURL == "" {
		apiURL = linkedInAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	st := gobreaker.Settings{
		Name:     "linkedin",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &LinkedIn{
		cfg:     cfg,
		apiURL:  strings.TrimRight(apiURL, "/"),
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (l *LinkedIn) Configured() bool {
	return l.cfg.AccessToken != "" && l.cfg.PersonURN != ""
}

// Post publishes text and returns the platform post URN.
func (l *LinkedIn) Post(ctx context.Context, text string) (string, error) {
	out, err := l.breaker.Execute(func() (interface{}, error) {
		return l.post(ctx, text)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (l *LinkedIn) post(ctx context.Context, text string) (string, error) {
	author := l.cfg.PersonURN
	if !strings.HasPrefix(author, "urn:li:") {
		author = "urn:li:person:" + author
	}
	payload := ugcPost{
		Author:         author,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]shareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    shareCommentary{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+l.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("linkedin api error: %d - %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	id := gjson.GetBytes(data, "id").String()
	if id == "" {
		id = resp.Header.Get("X-RestLi-Id")
	}
	return id, nil
}

// PostURL is the feed link for a share URN.
func PostURL(urn string) string {
	if urn == "" {
		return ""
	}
	return "https://www.linkedin.com/feed/update/" + urn
}
