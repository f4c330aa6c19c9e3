// Package assistant talks to the AI gateway that suggests, prioritizes and
// chats about board content.
package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

type RequestType string

const (
	TypeSuggest    RequestType = "suggest"
	TypePrioritize RequestType = "prioritize"
	TypeChat       RequestType = "chat"
)

var (
	ErrRateLimited    = errors.New("assistant: rate limit exceeded, try again in a moment")
	ErrQuotaExhausted = errors.New("assistant: credits exhausted")
	ErrUnavailable    = errors.New("assistant: service temporarily unavailable")
)

// TaskSummary is the slice of a task the gateway sees.
type TaskSummary struct {
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	DueDate  string `json:"due_date,omitempty"`
}

type ProjectSummary struct {
	Name string `json:"name"`
}

type Context struct {
	Projects []ProjectSummary `json:"projects,omitempty"`
	Tasks    []TaskSummary    `json:"tasks,omitempty"`
	Message  string           `json:"message,omitempty"`
}

type Request struct {
	Type    RequestType `json:"type"`
	Context Context     `json:"context"`
}

func (r Request) Validate() error {
	switch r.Type {
	case TypeSuggest, TypePrioritize:
		return nil
	case TypeChat:
		if r.Context.Message == "" {
			return &domain.ValidationError{Field: "message", Reason: "message is required"}
		}
		return nil
	}
	return &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown request type %q", r.Type)}
}

type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Reasoning   string `json:"reasoning"`
}

type Recommendation struct {
	TaskTitle           string `json:"taskTitle"`
	RecommendedPriority string `json:"recommendedPriority"`
	Reasoning           string `json:"reasoning"`
	SuggestedAction     string `json:"suggestedAction,omitempty"`
}

// Response holds whichever fields the request type produces.
type Response struct {
	Suggestions     []Suggestion     `json:"suggestions,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	Message         string           `json:"message,omitempty"`
}

type Client struct {
	url   string
	key   string
	model string
	http  *http.Client
}

func NewClient(url, key, model string) *Client {
	return &Client{url: url, key: key, model: model, http: &http.Client{Timeout: 60 * time.Second}}
}

// Do sends req to the gateway and decodes its answer.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	if c.url == "" {
		return Response{}, fmt.Errorf("%w: gateway is not configured", ErrUnavailable)
	}
	body, err := sonic.Marshal(struct {
		Request
		Model string `json:"model,omitempty"`
	}{req, c.model})
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.key)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Response{}, ErrRateLimited
	case resp.StatusCode == http.StatusPaymentRequired:
		return Response{}, ErrQuotaExhausted
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Response{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var out Response
	if err := sonic.Unmarshal(data, &out); err != nil {
		return Response{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if req.Type == TypeChat && out.Message == "" {
		out.Message = "No response generated"
	}
	return out, nil
}

// maxContextTasks bounds how many tasks are sent for suggestions.
const maxContextTasks = 10

// ContextFrom builds the request context from a store snapshot. Prioritize
// requests carry every task; suggestions carry the first few.
func ContextFrom(t RequestType, tasks []domain.Task, projects []domain.Project) Context {
	ctx := Context{}
	for _, p := range projects {
		ctx.Projects = append(ctx.Projects, ProjectSummary{Name: p.Name})
	}
	limit := len(tasks)
	if t == TypeSuggest && limit > maxContextTasks {
		limit = maxContextTasks
	}
	for _, task := range tasks[:limit] {
		s := TaskSummary{Title: task.Title, Status: string(task.Status), Priority: string(task.Priority)}
		if task.DueDate != nil {
			s.DueDate = task.DueDate.Format(time.DateOnly)
		}
		ctx.Tasks = append(ctx.Tasks, s)
	}
	return ctx
}
