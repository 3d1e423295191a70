package tracker

import (
	"context"
	stderrors "errors"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
)

func init() {
	task.RegisterBackend("gitlab", func(root string, settings task.Settings) (task.Backend, error) {
		remote, err := NewGitLabRemote(settings)
		if err != nil {
			return nil, err
		}
		return NewBackend(remote, optionsFromSettings(root, settings)), nil
	})
}

// GitLabRemote stores tasks as project issues, mirroring the GitHub layout:
// id in the title prefix, marker label, metadata block in the description,
// task comments as issue notes.
type GitLabRemote struct {
	client    *gogitlab.Client
	projectID string
	label     string

	issueCache map[string]gitlabIssue
}

type gitlabIssue struct {
	iid  int64
	task *task.Task
}

// NewGitLabRemote builds the remote from settings (project, token, base_url,
// label). project is the full path, e.g. "group/subgroup/repo".
// CODEX_SWARM_GITLAB_TOKEN overrides settings.token.
func NewGitLabRemote(settings task.Settings) (*GitLabRemote, error) {
	project := stringSetting(settings, "project")
	token := envOr("CODEX_SWARM_GITLAB_TOKEN", stringSetting(settings, "token"))
	if project == "" || token == "" {
		return nil, swarmerrors.New(swarmerrors.CodeConfigInvalid,
			"gitlab backend requires project and token")
	}
	label := stringSetting(settings, "label")
	if label == "" {
		label = "agentctl"
	}

	var client *gogitlab.Client
	var err error
	if baseURL := stringSetting(settings, "base_url"); baseURL != "" {
		client, err = gogitlab.NewClient(token, gogitlab.WithBaseURL(baseURL+"/api/v4"))
	} else {
		client, err = gogitlab.NewClient(token)
	}
	if err != nil {
		return nil, swarmerrors.Wrap(swarmerrors.CodeConfigInvalid, "create gitlab client", err)
	}
	return &GitLabRemote{
		client:     client,
		projectID:  project,
		label:      label,
		issueCache: map[string]gitlabIssue{},
	}, nil
}

func (r *GitLabRemote) Name() string { return "gitlab" }

// ListRemote pages through marker-labeled issues and decodes their metadata
// blocks.
func (r *GitLabRemote) ListRemote() ([]*task.Task, error) {
	ctx := context.Background()
	r.issueCache = map[string]gitlabIssue{}

	opts := &gogitlab.ListProjectIssuesOptions{
		Labels:      &gogitlab.LabelOptions{r.label},
		ListOptions: gogitlab.ListOptions{PerPage: 100},
	}
	var tasks []*task.Task
	for {
		issues, resp, err := r.client.Issues.ListProjectIssues(r.projectID, opts, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, mapGitLabErr(err)
		}
		for _, issue := range issues {
			t, err := decodeTaskBody(issue.Description)
			if err != nil || t == nil || task.ValidateID(t.ID) != nil {
				continue
			}
			r.issueCache[t.ID] = gitlabIssue{iid: int64(issue.IID), task: t}
			tasks = append(tasks, t)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return tasks, nil
}

func (r *GitLabRemote) FindRemote(id string) (*task.Task, error) {
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

// WriteRemote creates or updates the issue and posts new task comments as
// notes. DONE tasks close the issue, anything else reopens it.
func (r *GitLabRemote) WriteRemote(t *task.Task) error {
	ctx := context.Background()
	existing, found := r.issueCache[t.ID]
	if !found {
		if _, err := r.ListRemote(); err != nil {
			return err
		}
		existing, found = r.issueCache[t.ID]
	}

	body, err := encodeTaskBody(t)
	if err != nil {
		return err
	}
	labels := gogitlab.LabelOptions{r.label, statusLabel(t)}

	var iid int64
	if found {
		iid = existing.iid
		stateEvent := "reopen"
		if t.Status == task.StatusDone {
			stateEvent = "close"
		}
		updateOpts := &gogitlab.UpdateIssueOptions{
			Title:       gogitlab.Ptr(issueTitle(t)),
			Description: gogitlab.Ptr(body),
			Labels:      &labels,
			StateEvent:  gogitlab.Ptr(stateEvent),
		}
		if _, _, err := r.client.Issues.UpdateIssue(r.projectID, iid, updateOpts, gogitlab.WithContext(ctx)); err != nil {
			return mapGitLabErr(err)
		}
	} else {
		createOpts := &gogitlab.CreateIssueOptions{
			Title:       gogitlab.Ptr(issueTitle(t)),
			Description: gogitlab.Ptr(body),
			Labels:      &labels,
		}
		issue, _, err := r.client.Issues.CreateIssue(r.projectID, createOpts, gogitlab.WithContext(ctx))
		if err != nil {
			return mapGitLabErr(err)
		}
		iid = int64(issue.IID)
	}

	var prior []task.Comment
	if found {
		prior = existing.task.Comments
	}
	for _, c := range newComments(prior, t.Comments) {
		noteOpts := &gogitlab.CreateIssueNoteOptions{Body: gogitlab.Ptr(formatCommentNote(c))}
		if _, _, err := r.client.Notes.CreateIssueNote(r.projectID, iid, noteOpts, gogitlab.WithContext(ctx)); err != nil {
			return mapGitLabErr(err)
		}
	}
	r.issueCache = map[string]gitlabIssue{}
	return nil
}

// mapGitLabErr distinguishes API rejections from an unreachable host.
func mapGitLabErr(err error) error {
	var apiErr *gogitlab.ErrorResponse
	if stderrors.As(err, &apiErr) {
		return swarmerrors.Wrap(swarmerrors.CodeRemoteHTTP, "gitlab API error", err)
	}
	return swarmerrors.Wrap(swarmerrors.CodeRemoteUnavailable, "gitlab unavailable", err)
}
