package tracker

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
)

func init() {
	task.RegisterBackend("tracker", func(root string, settings task.Settings) (task.Backend, error) {
		remote, err := NewRedmineRemote(settings)
		if err != nil {
			return nil, err
		}
		return NewBackend(remote, optionsFromSettings(root, settings)), nil
	})
}

// RedmineRemote speaks the Redmine-style HTTP/JSON wire format: a paginated
// issues.json list, custom fields carrying the task payload, and journal
// notes for appended comments. It backs the generic "tracker" backend.
type RedmineRemote struct {
	baseURL    string
	apiKey     string
	projectID  string
	assigneeID int
	ownerAgent string

	// statusMap maps task statuses to tracker status ids; reverseStatus is
	// its inverse.
	statusMap     map[string]int
	reverseStatus map[int]string
	// customFields maps payload keys (task_id, verify, commit, comments,
	// doc, doc_version, doc_updated_at, doc_updated_by) to tracker custom
	// field ids.
	customFields map[string]int

	client        *http.Client
	retryInterval time.Duration

	// issueCache maps task ids to raw issues from the last list, so a
	// write after a list skips the lookup round-trip.
	issueCache map[string]gjson.Result
}

// NewRedmineRemote builds the remote from the backend settings block.
// CODEX_SWARM_TRACKER_{URL,API_KEY,PROJECT_ID,ASSIGNEE_ID,OWNER} override
// the corresponding settings.
func NewRedmineRemote(settings task.Settings) (*RedmineRemote, error) {
	r := &RedmineRemote{
		baseURL:       strings.TrimRight(envOr("CODEX_SWARM_TRACKER_URL", stringSetting(settings, "url")), "/"),
		apiKey:        envOr("CODEX_SWARM_TRACKER_API_KEY", stringSetting(settings, "api_key")),
		projectID:     envOr("CODEX_SWARM_TRACKER_PROJECT_ID", stringSetting(settings, "project_id")),
		ownerAgent:    envOr("CODEX_SWARM_TRACKER_OWNER", stringSetting(settings, "owner_agent")),
		statusMap:     intMapSetting(settings, "status_map"),
		customFields:  intMapSetting(settings, "custom_fields"),
		client:        &http.Client{Timeout: 10 * time.Second},
		retryInterval: 500 * time.Millisecond,
		issueCache:    map[string]gjson.Result{},
	}
	if raw := envOr("CODEX_SWARM_TRACKER_ASSIGNEE_ID", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			r.assigneeID = n
		}
	} else {
		r.assigneeID = intSetting(settings, "assignee_id", 0)
	}
	if r.ownerAgent == "" {
		r.ownerAgent = "TRACKER"
	}
	if r.baseURL == "" || r.apiKey == "" || r.projectID == "" {
		return nil, swarmerrors.New(swarmerrors.CodeConfigInvalid,
			"tracker backend requires url, api_key, and project_id")
	}
	if r.customFields["task_id"] == 0 {
		return nil, swarmerrors.New(swarmerrors.CodeConfigInvalid,
			"tracker backend requires custom_fields.task_id")
	}
	r.reverseStatus = make(map[int]string, len(r.statusMap))
	for status, id := range r.statusMap {
		r.reverseStatus[id] = strings.ToUpper(status)
	}
	return r, nil
}

func (r *RedmineRemote) Name() string { return "tracker" }

// ListRemote pages through issues.json and converts every issue carrying a
// valid task id custom field.
func (r *RedmineRemote) ListRemote() ([]*task.Task, error) {
	const pageLimit = 100
	r.issueCache = map[string]gjson.Result{}

	var tasks []*task.Task
	offset := 0
	for {
		params := url.Values{}
		params.Set("project_id", r.projectID)
		params.Set("status_id", "*")
		params.Set("limit", strconv.Itoa(pageLimit))
		params.Set("offset", strconv.Itoa(offset))
		payload, err := r.requestJSON(http.MethodGet, "issues.json", params, nil)
		if err != nil {
			return nil, err
		}
		for _, issue := range payload.Get("issues").Array() {
			id := r.customFieldValue(issue, "task_id")
			if id == "" || task.ValidateID(id) != nil {
				continue
			}
			r.issueCache[id] = issue
			tasks = append(tasks, r.issueToTask(issue, id))
		}
		total := int(payload.Get("total_count").Int())
		if total == 0 || offset+pageLimit >= total {
			break
		}
		offset += pageLimit
	}
	return tasks, nil
}

// FindRemote looks one task up via the custom-field filter, falling back to
// a full list when the filter misses.
func (r *RedmineRemote) FindRemote(id string) (*task.Task, error) {
	issue, found, err := r.findIssue(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return r.issueToTask(issue, id), nil
}

// WriteRemote creates or updates the issue for a task and appends journal
// notes for comments the issue has not seen yet.
func (r *RedmineRemote) WriteRemote(t *task.Task) error {
	issue, found, err := r.findIssue(t.ID)
	if err != nil {
		return err
	}

	out := t.Clone()
	if out.Doc != "" && (out.DocVersion == 0 || out.DocUpdatedAt == "") {
		task.ApplyDocMetadata(out, "")
	}
	payload := r.taskPayload(out, issue)

	var issueID int64
	if found {
		issueID = issue.Get("id").Int()
		if _, err := r.requestJSON(http.MethodPut, fmt.Sprintf("issues/%d.json", issueID), nil,
			map[string]any{"issue": payload}); err != nil {
			return err
		}
	} else {
		payload["project_id"] = r.projectID
		created, err := r.requestJSON(http.MethodPost, "issues.json", nil, map[string]any{"issue": payload})
		if err != nil {
			return err
		}
		issueID = created.Get("issue.id").Int()
	}

	if issueID != 0 {
		existing := parseCommentsField(r.customFieldValue(issue, "comments"))
		if err := r.appendCommentNotes(issueID, existing, out.Comments); err != nil {
			return err
		}
	}
	r.issueCache = map[string]gjson.Result{}
	return nil
}

func (r *RedmineRemote) findIssue(id string) (gjson.Result, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return gjson.Result{}, false, nil
	}
	if cached, ok := r.issueCache[id]; ok {
		return cached, true, nil
	}

	params := url.Values{}
	params.Set("project_id", r.projectID)
	params.Set("status_id", "*")
	params.Set(fmt.Sprintf("cf_%d", r.customFields["task_id"]), id)
	params.Set("limit", "100")
	payload, err := r.requestJSON(http.MethodGet, "issues.json", params, nil)
	if err != nil {
		return gjson.Result{}, false, err
	}
	for _, issue := range payload.Get("issues").Array() {
		if r.customFieldValue(issue, "task_id") == id {
			r.issueCache[id] = issue
			return issue, true, nil
		}
	}

	// Some trackers ignore unknown cf_ filters; rebuild the cache from a
	// full list before giving up.
	if _, err := r.ListRemote(); err != nil {
		return gjson.Result{}, false, err
	}
	if cached, ok := r.issueCache[id]; ok {
		return cached, true, nil
	}
	return gjson.Result{}, false, nil
}

func (r *RedmineRemote) issueToTask(issue gjson.Result, id string) *task.Task {
	status := task.StatusTodo
	if name, ok := r.reverseStatus[int(issue.Get("status.id").Int())]; ok {
		if parsed, err := task.ParseStatus(name); err == nil {
			status = parsed
		}
	}
	t := &task.Task{
		ID:          id,
		Title:       issue.Get("subject").String(),
		Description: issue.Get("description").String(),
		Status:      status,
		Priority:    issue.Get("priority.name").String(),
		Owner:       r.ownerAgent,
		Verify:      parseVerifyField(r.customFieldValue(issue, "verify")),
		Commit:      parseCommitField(r.customFieldValue(issue, "commit")),
		Comments:    parseCommentsField(r.customFieldValue(issue, "comments")),
		Doc:         r.customFieldValue(issue, "doc"),
	}
	if raw := r.customFieldValue(issue, "doc_version"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			t.DocVersion = n
		}
	}
	t.DocUpdatedAt = r.customFieldValue(issue, "doc_updated_at")
	t.DocUpdatedBy = r.customFieldValue(issue, "doc_updated_by")
	return t
}

func (r *RedmineRemote) taskPayload(t *task.Task, existing gjson.Result) map[string]any {
	payload := map[string]any{
		"subject":     t.Title,
		"description": t.Description,
	}
	status := string(t.Status)
	if id, ok := r.statusMap[status]; ok {
		payload["status_id"] = id
	}
	if r.assigneeID != 0 && !existing.Get("assigned_to.id").Exists() {
		payload["assigned_to_id"] = r.assigneeID
	}
	if date := startDateFromID(t.ID); date != "" {
		payload["start_date"] = date
	}
	if t.Status == task.StatusDone {
		payload["done_ratio"] = 100
	} else if status != "" {
		payload["done_ratio"] = 0
	}

	var fields []map[string]any
	appendField := func(key string, value any) {
		id := r.customFields[key]
		if id == 0 || value == nil {
			return
		}
		switch v := value.(type) {
		case string:
			fields = append(fields, map[string]any{"id": id, "value": v})
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return
			}
			fields = append(fields, map[string]any{"id": id, "value": string(data)})
		}
	}
	appendField("task_id", t.ID)
	if len(t.Verify) > 0 {
		appendField("verify", t.Verify)
	}
	if t.Commit != nil {
		appendField("commit", t.Commit)
	}
	if len(t.Comments) > 0 {
		appendField("comments", t.Comments)
	}
	if t.Doc != "" {
		appendField("doc", t.Doc)
	}
	if t.DocVersion != 0 {
		appendField("doc_version", strconv.Itoa(t.DocVersion))
	}
	if t.DocUpdatedAt != "" {
		appendField("doc_updated_at", t.DocUpdatedAt)
	}
	if t.DocUpdatedBy != "" {
		appendField("doc_updated_by", t.DocUpdatedBy)
	}
	if len(fields) > 0 {
		payload["custom_fields"] = fields
	}
	return payload
}

// appendCommentNotes posts one journal note per comment the issue has not
// recorded yet. Notes are only appended when the desired list extends the
// existing one; a rewritten history is left alone.
func (r *RedmineRemote) appendCommentNotes(issueID int64, existing, desired []task.Comment) error {
	if len(desired) == 0 || len(desired) < len(existing) {
		return nil
	}
	for i, c := range existing {
		if desired[i].Author != c.Author || desired[i].Body != c.Body {
			return nil
		}
	}
	for _, c := range desired[len(existing):] {
		author := c.Author
		if author == "" {
			author = "unknown"
		}
		note := strings.TrimSpace(fmt.Sprintf("[comment] %s: %s", author, c.Body))
		if note == "" {
			continue
		}
		if _, err := r.requestJSON(http.MethodPut, fmt.Sprintf("issues/%d.json", issueID), nil,
			map[string]any{"issue": map[string]any{"notes": note}}); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedmineRemote) customFieldValue(issue gjson.Result, key string) string {
	fieldID := r.customFields[key]
	if fieldID == 0 {
		return ""
	}
	for _, field := range issue.Get("custom_fields").Array() {
		if int(field.Get("id").Int()) == fieldID {
			return field.Get("value").String()
		}
	}
	return ""
}

// httpStatusError marks a failed HTTP exchange; 429 and 5xx are retried.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

func (e *httpStatusError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

// requestJSON performs one API call with exponential backoff on 429/5xx and
// network errors. Exhausted network retries surface as remote_unavailable so
// the core can fall back to the cache; API errors surface as remote_http.
func (r *RedmineRemote) requestJSON(method, path string, params url.Values, payload any) (gjson.Result, error) {
	endpoint := r.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encode tracker payload: %w", err)
		}
		body = data
	}

	var result gjson.Result
	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Redmine-API-Key", r.apiKey)

		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			statusErr := &httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
			if statusErr.retryable() {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		result = gjson.ParseBytes(data)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryInterval
	if err := backoff.Retry(operation, backoff.WithMaxRetries(policy, 2)); err != nil {
		var statusErr *httpStatusError
		if stderrors.As(err, &statusErr) {
			return gjson.Result{}, swarmerrors.Wrap(swarmerrors.CodeRemoteHTTP,
				fmt.Sprintf("tracker API error: %s %s", method, path), statusErr)
		}
		return gjson.Result{}, swarmerrors.Wrap(swarmerrors.CodeRemoteUnavailable, "tracker unavailable", err)
	}
	return result, nil
}

func parseVerifyField(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var commands []string
		if err := json.Unmarshal([]byte(raw), &commands); err == nil {
			return commands
		}
	}
	return []string{raw}
}

func parseCommitField(raw string) *task.Commit {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "{") {
		return nil
	}
	var c task.Commit
	if err := json.Unmarshal([]byte(raw), &c); err != nil || c.Hash == "" {
		return nil
	}
	return &c
}

func parseCommentsField(raw string) []task.Comment {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var comments []task.Comment
		if err := json.Unmarshal([]byte(raw), &comments); err == nil {
			return comments
		}
	}
	if strings.HasPrefix(raw, "{") {
		var c task.Comment
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			return []task.Comment{c}
		}
	}
	return []task.Comment{{Author: "tracker", Body: raw}}
}

// startDateFromID derives YYYY-MM-DD from the timestamp prefix of a task id.
func startDateFromID(id string) string {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok || len(prefix) < 8 {
		return ""
	}
	for _, c := range prefix[:8] {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return prefix[0:4] + "-" + prefix[4:6] + "-" + prefix[6:8]
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intMapSetting(settings task.Settings, key string) map[string]int {
	out := map[string]int{}
	raw, ok := settings[key].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range raw {
		switch n := v.(type) {
		case int:
			out[k] = n
		case float64:
			out[k] = int(n)
		}
	}
	return out
}
