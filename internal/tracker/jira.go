package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
)

func init() {
	task.RegisterBackend("jira", func(root string, settings task.Settings) (task.Backend, error) {
		remote, err := NewJiraRemote(settings)
		if err != nil {
			return nil, err
		}
		return NewBackend(remote, optionsFromSettings(root, settings)), nil
	})
}

// JiraRemote stores tasks as Jira issues: the marker and status labels for
// filtering, and the task record in a JSON code block inside the ADF
// description. Jira workflow transitions are not driven; the status lives in
// the labels and the metadata block.
type JiraRemote struct {
	client    *v3.Client
	project   string
	issueType string
	label     string

	issueCache map[string]jiraIssue
}

type jiraIssue struct {
	key  string
	task *task.Task
}

// jiraSearchFields keeps search responses small.
var jiraSearchFields = []string{"summary", "description", "labels", "status"}

// NewJiraRemote builds the remote from settings (url, email, api_token,
// project, issue_type, label). CODEX_SWARM_JIRA_{URL,EMAIL,API_TOKEN}
// override the corresponding settings.
func NewJiraRemote(settings task.Settings) (*JiraRemote, error) {
	baseURL := strings.TrimRight(envOr("CODEX_SWARM_JIRA_URL", stringSetting(settings, "url")), "/")
	email := envOr("CODEX_SWARM_JIRA_EMAIL", stringSetting(settings, "email"))
	apiToken := envOr("CODEX_SWARM_JIRA_API_TOKEN", stringSetting(settings, "api_token"))
	project := stringSetting(settings, "project")
	if baseURL == "" || email == "" || apiToken == "" || project == "" {
		return nil, swarmerrors.New(swarmerrors.CodeConfigInvalid,
			"jira backend requires url, email, api_token, and project")
	}
	issueType := stringSetting(settings, "issue_type")
	if issueType == "" {
		issueType = "Task"
	}
	label := stringSetting(settings, "label")
	if label == "" {
		label = "agentctl"
	}

	client, err := v3.New(&http.Client{Timeout: 30 * time.Second}, baseURL)
	if err != nil {
		return nil, swarmerrors.Wrap(swarmerrors.CodeConfigInvalid, "create jira client", err)
	}
	client.Auth.SetBasicAuth(email, apiToken)
	client.Auth.SetUserAgent("agentctl/1.0")

	return &JiraRemote{
		client:     client,
		project:    project,
		issueType:  issueType,
		label:      label,
		issueCache: map[string]jiraIssue{},
	}, nil
}

func (r *JiraRemote) Name() string { return "jira" }

// ListRemote pages through marker-labeled issues in the project, decoding
// the metadata block from each description.
func (r *JiraRemote) ListRemote() ([]*task.Task, error) {
	ctx := context.Background()
	r.issueCache = map[string]jiraIssue{}

	jql := `project = "` + r.project + `" AND labels = "` + r.label + `" ORDER BY created ASC`
	var tasks []*task.Task
	nextPageToken := ""
	for {
		result, resp, err := r.client.Issue.Search.SearchJQL(ctx, jql, jiraSearchFields, nil, 100, nextPageToken)
		if err != nil {
			return nil, mapJiraErr(resp, err)
		}
		for _, issue := range result.Issues {
			if issue == nil || issue.Fields == nil {
				continue
			}
			t, err := adfTaskMetadata(issue.Fields.Description)
			if err != nil || t == nil || task.ValidateID(t.ID) != nil {
				continue
			}
			r.issueCache[t.ID] = jiraIssue{key: issue.Key, task: t}
			tasks = append(tasks, t)
		}
		if result.NextPageToken == "" || len(result.Issues) == 0 {
			break
		}
		nextPageToken = result.NextPageToken
	}
	return tasks, nil
}

func (r *JiraRemote) FindRemote(id string) (*task.Task, error) {
	if cached, ok := r.issueCache[id]; ok {
		return cached.task.Clone(), nil
	}
	if _, err := r.ListRemote(); err != nil {
		return nil, err
	}
	if cached, ok := r.issueCache[id]; ok {
		return cached.task.Clone(), nil
	}
	return nil, nil
}

// WriteRemote creates or updates the issue and adds new task comments as
// Jira comments.
func (r *JiraRemote) WriteRemote(t *task.Task) error {
	ctx := context.Background()
	existing, found := r.issueCache[t.ID]
	if !found {
		if _, err := r.ListRemote(); err != nil {
			return err
		}
		existing, found = r.issueCache[t.ID]
	}

	clean := t.Clone()
	clean.Dirty = false
	metaJSON, err := json.MarshalIndent(clean.ToMap(), "", "  ")
	if err != nil {
		return err
	}
	fields := &models.IssueFieldsScheme{
		Summary:     issueTitle(t),
		Labels:      []string{r.label, statusLabel(t)},
		Description: adfTaskDescription(t.Description, string(metaJSON)),
	}

	var key string
	if found {
		key = existing.key
		resp, err := r.client.Issue.Update(ctx, key, true, &models.IssueScheme{Fields: fields}, nil, nil)
		if err != nil {
			return mapJiraErr(resp, err)
		}
	} else {
		fields.Project = &models.ProjectScheme{Key: r.project}
		fields.IssueType = &models.IssueTypeScheme{Name: r.issueType}
		created, resp, err := r.client.Issue.Create(ctx, &models.IssueScheme{Fields: fields}, nil)
		if err != nil {
			return mapJiraErr(resp, err)
		}
		key = created.Key
	}

	var prior []task.Comment
	if found {
		prior = existing.task.Comments
	}
	for _, c := range newComments(prior, t.Comments) {
		payload := &models.CommentPayloadScheme{Body: adfParagraph(formatCommentNote(c))}
		if _, resp, err := r.client.Issue.Comment.Add(ctx, key, payload, nil); err != nil {
			return mapJiraErr(resp, err)
		}
	}
	r.issueCache = map[string]jiraIssue{}
	return nil
}

// adfTaskDescription builds the ADF description document: the prose in a
// paragraph, the metadata JSON in a code block.
func adfTaskDescription(prose, metaJSON string) *models.CommentNodeScheme {
	doc := &models.CommentNodeScheme{Type: "doc"}
	if desc := strings.TrimSpace(prose); desc != "" {
		doc.Content = append(doc.Content, &models.CommentNodeScheme{
			Type:    "paragraph",
			Content: []*models.CommentNodeScheme{{Type: "text", Text: desc}},
		})
	}
	doc.Content = append(doc.Content, &models.CommentNodeScheme{
		Type:    "codeBlock",
		Attrs:   map[string]interface{}{"language": "json"},
		Content: []*models.CommentNodeScheme{{Type: "text", Text: metaJSON}},
	})
	return doc
}

func adfParagraph(text string) *models.CommentNodeScheme {
	return &models.CommentNodeScheme{
		Type: "doc",
		Content: []*models.CommentNodeScheme{{
			Type:    "paragraph",
			Content: []*models.CommentNodeScheme{{Type: "text", Text: text}},
		}},
	}
}

// adfTaskMetadata walks the ADF description for a code block holding the
// task record. Returns (nil, nil) for descriptions without one.
func adfTaskMetadata(node *models.CommentNodeScheme) (*task.Task, error) {
	text, ok := findADFCodeBlock(node)
	if !ok {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, nil
	}
	if _, hasID := m["id"]; !hasID {
		return nil, nil
	}
	return task.FromMap(m)
}

func findADFCodeBlock(node *models.CommentNodeScheme) (string, bool) {
	if node == nil {
		return "", false
	}
	if node.Type == "codeBlock" {
		var b strings.Builder
		for _, child := range node.Content {
			if child != nil && child.Type == "text" {
				b.WriteString(child.Text)
			}
		}
		return b.String(), true
	}
	for _, child := range node.Content {
		if text, ok := findADFCodeBlock(child); ok {
			return text, ok
		}
	}
	return "", false
}

// mapJiraErr distinguishes API rejections from an unreachable host.
func mapJiraErr(resp *models.ResponseScheme, err error) error {
	if resp != nil {
		return swarmerrors.Wrap(swarmerrors.CodeRemoteHTTP, "jira API error", err)
	}
	return swarmerrors.Wrap(swarmerrors.CodeRemoteUnavailable, "jira unavailable", err)
}
