// Package summary turns an activity snapshot into a natural-language narrative
// using an OpenAI-compatible chat completion endpoint.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/naka-gawa/gitlab-report/internal/config"
	"github.com/naka-gawa/gitlab-report/internal/domain"
)

// maxDiffBytes caps each file diff sent to the model.
const maxDiffBytes = 4000

const systemPromptTemplate = `You are a software engineering analyst reviewing recent activity in a GitLab project.
The user message is a JSON document with the project's commits (including diffs), merge requests and issues.
Write a structured report in %s with exactly these sections:
1. Project summary: the overall direction and the most important changes.
2. Activity by author: for every author, what they worked on.
3. Key development areas: the main themes, risks and open work.
Be concise and factual. Do not invent work that is not in the data.`

// Summarizer produces a narrative for a snapshot.
type Summarizer interface {
	Summarize(ctx context.Context, snapshot *domain.ActivitySnapshot) (string, error)
}

// Options configures the OpenAI summarizer.
type Options struct {
	APIKey   string
	Model    string
	BaseURL  string
	Language string
}

// OptionsFromConfig builds summarizer options from the OpenAI section of the configuration.
func OptionsFromConfig(cfg config.OpenAIConfig) Options {
	return Options{
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		Language: cfg.Language,
	}
}

// OpenAISummarizer is the Summarizer backed by openai-go.
type OpenAISummarizer struct {
	client   openai.Client
	model    string
	language string
	logger   zerolog.Logger
}

// NewOpenAISummarizer creates a summarizer. Client retries are disabled so each
// project gets a single attempt.
func NewOpenAISummarizer(opts Options, logger zerolog.Logger) *OpenAISummarizer {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	model := opts.Model
	if model == "" {
		model = config.DefaultOpenAIModel
	}
	language := opts.Language
	if language == "" {
		language = config.DefaultSummaryLanguage
	}

	return &OpenAISummarizer{
		client:   openai.NewClient(reqOpts...),
		model:    model,
		language: language,
		logger:   logger,
	}
}

// Summarize sends the snapshot to the model and returns its narrative.
func (s *OpenAISummarizer) Summarize(ctx context.Context, snapshot *domain.ActivitySnapshot) (string, error) {
	if snapshot == nil {
		return "", errors.New("summarize: nil snapshot")
	}
	body, err := json.Marshal(newPayload(snapshot))
	if err != nil {
		return "", fmt.Errorf("failed to encode summary payload: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(s.language)),
			openai.UserMessage(string(body)),
		},
		Temperature: openai.Float(0.2),
	}

	start := time.Now()
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion: no choices in response")
	}

	s.logger.Debug().
		Str("project", snapshot.ProjectName).
		Str("model", s.model).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Summary completed")

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("openai chat completion: empty content")
	}
	return content, nil
}

// SystemPrompt returns the fixed instruction sent with every request.
func SystemPrompt(language string) string {
	return fmt.Sprintf(systemPromptTemplate, language)
}

type payload struct {
	Project       string          `json:"project"`
	Since         string          `json:"since"`
	Until         string          `json:"until"`
	Commits       []commitPayload `json:"commits"`
	MergeRequests []itemPayload   `json:"merge_requests"`
	Issues        []itemPayload   `json:"issues"`
}

type commitPayload struct {
	Author  string          `json:"author"`
	Title   string          `json:"title"`
	Date    string          `json:"date"`
	Changes []changePayload `json:"changes"`
}

type changePayload struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Diff string `json:"diff"`
}

type itemPayload struct {
	Author string `json:"author"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Date   string `json:"date"`
}

func newPayload(s *domain.ActivitySnapshot) payload {
	p := payload{
		Project:       s.ProjectName,
		Since:         formatTime(s.Since),
		Until:         formatTime(s.Until),
		Commits:       make([]commitPayload, 0, len(s.Commits)),
		MergeRequests: make([]itemPayload, 0, len(s.MergeRequests)),
		Issues:        make([]itemPayload, 0, len(s.Issues)),
	}
	for _, c := range s.Commits {
		cp := commitPayload{
			Author:  c.AuthorName,
			Title:   c.Title,
			Date:    formatTime(c.CreatedAt),
			Changes: make([]changePayload, 0, len(c.Changes)),
		}
		for _, ch := range c.Changes {
			cp.Changes = append(cp.Changes, changePayload{
				Path: ch.NewPath,
				Type: ch.ChangeType(),
				Diff: truncate(ch.Diff, maxDiffBytes),
			})
		}
		p.Commits = append(p.Commits, cp)
	}
	for _, mr := range s.MergeRequests {
		p.MergeRequests = append(p.MergeRequests, itemPayload{
			Author: mr.AuthorName, Title: mr.Title, State: mr.State, Date: formatTime(mr.CreatedAt),
		})
	}
	for _, issue := range s.Issues {
		p.Issues = append(p.Issues, itemPayload{
			Author: issue.AuthorName, Title: issue.Title, State: issue.State, Date: formatTime(issue.CreatedAt),
		})
	}
	return p
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}
