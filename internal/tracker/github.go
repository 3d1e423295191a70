package tracker

import (
	"context"
	stderrors "errors"
	"net/http"

	gogithub "github.com/google/go-github/v82/github"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
)

func init() {
	task.RegisterBackend("github", func(root string, settings task.Settings) (task.Backend, error) {
		remote, err := NewGitHubRemote(settings)
		if err != nil {
			return nil, err
		}
		return NewBackend(remote, optionsFromSettings(root, settings)), nil
	})
}

// GitHubRemote stores tasks as repository issues: task id in the title
// prefix, a marker label for filtering, the record in the body metadata
// block, and task comments mirrored as issue comments.
type GitHubRemote struct {
	client *gogithub.Client
	owner  string
	repo   string
	label  string

	// issueCache maps task ids to their issue from the last list.
	issueCache map[string]githubIssue
}

type githubIssue struct {
	number int
	task   *task.Task
}

// NewGitHubRemote builds the remote from settings (owner, repo, token,
// base_url, label). CODEX_SWARM_GITHUB_TOKEN overrides settings.token.
func NewGitHubRemote(settings task.Settings) (*GitHubRemote, error) {
	owner := stringSetting(settings, "owner")
	repo := stringSetting(settings, "repo")
	token := envOr("CODEX_SWARM_GITHUB_TOKEN", stringSetting(settings, "token"))
	if owner == "" || repo == "" || token == "" {
		return nil, swarmerrors.New(swarmerrors.CodeConfigInvalid,
			"github backend requires owner, repo, and token")
	}
	label := stringSetting(settings, "label")
	if label == "" {
		label = "agentctl"
	}

	client := gogithub.NewClient(&http.Client{Transport: &bearerTransport{token: token}})
	if baseURL := stringSetting(settings, "base_url"); baseURL != "" {
		var err error
		client.BaseURL, err = client.BaseURL.Parse(baseURL + "/api/v3/")
		if err != nil {
			return nil, swarmerrors.Wrap(swarmerrors.CodeConfigInvalid, "invalid github base_url", err)
		}
	}
	return &GitHubRemote{
		client:     client,
		owner:      owner,
		repo:       repo,
		label:      label,
		issueCache: map[string]githubIssue{},
	}, nil
}

// bearerTransport adds the Authorization header to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

func (r *GitHubRemote) Name() string { return "github" }

// ListRemote pages through marker-labeled issues and decodes their metadata
// blocks. Issues without a block are foreign and skipped.
func (r *GitHubRemote) ListRemote() ([]*task.Task, error) {
	ctx := context.Background()
	r.issueCache = map[string]githubIssue{}

	opts := &gogithub.IssueListByRepoOptions{
		State:       "all",
		Labels:      []string{r.label},
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	var tasks []*task.Task
	for {
		issues, resp, err := r.client.Issues.ListByRepo(ctx, r.owner, r.repo, opts)
		if err != nil {
			return nil, mapGitHubErr(err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			t, err := decodeTaskBody(issue.GetBody())
			if err != nil || t == nil || task.ValidateID(t.ID) != nil {
				continue
			}
			r.issueCache[t.ID] = githubIssue{number: issue.GetNumber(), task: t}
			tasks = append(tasks, t)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return tasks, nil
}

func (r *GitHubRemote) FindRemote(id string) (*task.Task, error) {
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

// WriteRemote creates or edits the issue and posts new task comments as
// issue comments. DONE tasks close the issue.
func (r *GitHubRemote) WriteRemote(t *task.Task) error {
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
	state := "open"
	if t.Status == task.StatusDone {
		state = "closed"
	}
	req := &gogithub.IssueRequest{
		Title:  gogithub.Ptr(issueTitle(t)),
		Body:   gogithub.Ptr(body),
		Labels: &[]string{r.label, statusLabel(t)},
		State:  gogithub.Ptr(state),
	}

	number := 0
	if found {
		number = existing.number
		if _, _, err := r.client.Issues.Edit(ctx, r.owner, r.repo, number, req); err != nil {
			return mapGitHubErr(err)
		}
	} else {
		created, _, err := r.client.Issues.Create(ctx, r.owner, r.repo, req)
		if err != nil {
			return mapGitHubErr(err)
		}
		number = created.GetNumber()
	}

	var prior []task.Comment
	if found {
		prior = existing.task.Comments
	}
	for _, c := range newComments(prior, t.Comments) {
		comment := &gogithub.IssueComment{Body: gogithub.Ptr(formatCommentNote(c))}
		if _, _, err := r.client.Issues.CreateComment(ctx, r.owner, r.repo, number, comment); err != nil {
			return mapGitHubErr(err)
		}
	}
	r.issueCache = map[string]githubIssue{}
	return nil
}

// mapGitHubErr distinguishes API rejections from an unreachable host.
func mapGitHubErr(err error) error {
	var apiErr *gogithub.ErrorResponse
	if stderrors.As(err, &apiErr) {
		return swarmerrors.Wrap(swarmerrors.CodeRemoteHTTP, "github API error", err)
	}
	var rateErr *gogithub.RateLimitError
	if stderrors.As(err, &rateErr) {
		return swarmerrors.Wrap(swarmerrors.CodeRemoteHTTP, "github rate limit exceeded", err)
	}
	return swarmerrors.Wrap(swarmerrors.CodeRemoteUnavailable, "github unavailable", err)
}
