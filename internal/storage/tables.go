// Package storage holds the Azure Table Storage backend, the Redis read cache
// in front of any backend, and the Azure Queue change feed.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

// TableNames configures which tables hold each entity kind.
type TableNames struct {
	Tasks    string
	Projects string
	Profiles string
	Members  string
}

// Tables persists tasks and projects in Azure Table Storage.
type Tables struct {
	tasks    *aztables.Client
	projects *aztables.Client
	profiles *aztables.Client
	members  *aztables.Client
	now      func() time.Time
}

// NewTables creates a Tables backend from a storage connection string.
func NewTables(connStr string, names TableNames) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{
		tasks:    svc.NewClient(names.Tasks),
		projects: svc.NewClient(names.Projects),
		profiles: svc.NewClient(names.Profiles),
		members:  svc.NewClient(names.Members),
		now:      time.Now,
	}, nil
}

// classify maps Azure response errors into the domain error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return domain.Rejected(op, "not found", err)
		case http.StatusConflict:
			return domain.Rejected(op, "already exists", err)
		case http.StatusPreconditionFailed:
			return domain.Rejected(op, "modified concurrently", err)
		case http.StatusBadRequest:
			return domain.Rejected(op, "invalid request", err)
		}
	}
	return domain.Transport(op, err)
}

func list(ctx context.Context, client *aztables.Client, filter string, each func([]byte) error) error {
	opts := &aztables.ListEntitiesOptions{}
	if filter != "" {
		opts.Filter = &filter
	}
	pager := client.NewListEntitiesPager(opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := each(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// FetchTasks lists tasks newest first, scoped to a project when projectID is set.
func (s *Tables) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	filter := ""
	if projectID != "" {
		filter = "PartitionKey eq " + quote(projectID)
	}
	tasks := []domain.Task{}
	err := list(ctx, s.tasks, filter, func(data []byte) error {
		t, _, err := decodeTaskEntity(data)
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, classify("fetch tasks", err)
	}
	sortTasksNewestFirst(tasks)
	return tasks, nil
}

func (s *Tables) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	projects := []domain.Project{}
	err := list(ctx, s.projects, "PartitionKey eq "+quote(projectPartition), func(data []byte) error {
		p, err := decodeProjectEntity(data)
		if err != nil {
			return err
		}
		projects = append(projects, p)
		return nil
	})
	if err != nil {
		return nil, classify("fetch projects", err)
	}
	sortProjectsNewestFirst(projects)
	return projects, nil
}

func (s *Tables) FetchProfiles(ctx context.Context) ([]domain.Profile, error) {
	profiles := []domain.Profile{}
	err := list(ctx, s.profiles, "PartitionKey eq "+quote(profilePartition), func(data []byte) error {
		p, err := decodeProfileEntity(data)
		if err != nil {
			return err
		}
		profiles = append(profiles, p)
		return nil
	})
	if err != nil {
		return nil, classify("fetch profiles", err)
	}
	return profiles, nil
}

// UpsertProfile records the display name of a user.
func (s *Tables) UpsertProfile(ctx context.Context, p domain.Profile) error {
	payload, err := json.Marshal(profileEntity{PartitionKey: profilePartition, RowKey: p.UserID, Name: p.Name})
	if err == nil {
		_, err = s.profiles.UpsertEntity(ctx, payload, nil)
	}
	return classify("upsert profile", err)
}

func (s *Tables) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	now := s.now().UTC()
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		ProjectID:   draft.ProjectID,
		AssignedTo:  draft.AssignedTo,
		Priority:    draft.Priority,
		Status:      draft.Status,
		DueDate:     draft.DueDate,
		Tags:        draft.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.getProject(ctx, draft.ProjectID); err != nil {
		return domain.Task{}, classify("create task", err)
	}
	ent, err := toTaskEntity(t)
	if err != nil {
		return domain.Task{}, err
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.tasks.AddEntity(ctx, payload, nil)
	}
	if err != nil {
		return domain.Task{}, classify("create task", err)
	}
	return t.Clone(), nil
}

// findTask locates a task by id across partitions.
func (s *Tables) findTask(ctx context.Context, id string) (domain.Task, string, error) {
	var (
		found domain.Task
		etag  string
		ok    bool
	)
	err := list(ctx, s.tasks, "RowKey eq "+quote(id), func(data []byte) error {
		t, tag, err := decodeTaskEntity(data)
		if err != nil {
			return err
		}
		found, etag, ok = t, tag, true
		return nil
	})
	if err != nil {
		return domain.Task{}, "", err
	}
	if !ok {
		return domain.Task{}, "", &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ResourceNotFound"}
	}
	return found, etag, nil
}

// UpdateTask replaces the task row guarded by the ETag it was read with.
func (s *Tables) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	current, etag, err := s.findTask(ctx, id)
	if err != nil {
		return domain.Task{}, classify("update task", err)
	}
	next := patch.Apply(current)
	next.UpdatedAt = s.now().UTC()
	ent, err := toTaskEntity(next)
	if err != nil {
		return domain.Task{}, err
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		opts := &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeReplace}
		if etag != "" {
			tag := azcore.ETag(etag)
			opts.IfMatch = &tag
		}
		_, err = s.tasks.UpdateEntity(ctx, payload, opts)
	}
	if err != nil {
		return domain.Task{}, classify("update task", err)
	}
	return next, nil
}

func (s *Tables) DeleteTask(ctx context.Context, id string) error {
	t, _, err := s.findTask(ctx, id)
	if err != nil {
		return classify("delete task", err)
	}
	_, err = s.tasks.DeleteEntity(ctx, t.ProjectID, t.ID, nil)
	return classify("delete task", err)
}

func (s *Tables) getProject(ctx context.Context, id string) (projectEntity, error) {
	resp, err := s.projects.GetEntity(ctx, projectPartition, id, nil)
	if err != nil {
		return projectEntity{}, err
	}
	var ent projectEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return projectEntity{}, err
	}
	ent.ETag = string(resp.ETag)
	return ent, nil
}

func (s *Tables) CreateProject(ctx context.Context, ownerID string, draft domain.ProjectDraft) (domain.Project, error) {
	now := s.now().UTC()
	p := domain.Project{ID: uuid.NewString(), Name: draft.Name, Description: draft.Description, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	payload, err := json.Marshal(toProjectEntity(p))
	if err == nil {
		_, err = s.projects.AddEntity(ctx, payload, nil)
	}
	if err != nil {
		return domain.Project{}, classify("create project", err)
	}
	return p, nil
}

// AddMember records userID as a member of projectID.
func (s *Tables) AddMember(ctx context.Context, projectID, userID string) error {
	payload, err := json.Marshal(memberEntity{
		PartitionKey: projectID,
		RowKey:       userID,
		JoinedAt:     s.now().UnixNano(),
		JoinedAtType: edmInt64,
	})
	if err == nil {
		_, err = s.members.UpsertEntity(ctx, payload, nil)
	}
	return classify("add project member", err)
}

func (s *Tables) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	ent, err := s.getProject(ctx, id)
	if err != nil {
		return domain.Project{}, classify("update project", err)
	}
	next := patch.Apply(projectFromEntity(ent))
	next.UpdatedAt = s.now().UTC()
	payload, err := json.Marshal(toProjectEntity(next))
	if err == nil {
		tag := azcore.ETag(ent.ETag)
		_, err = s.projects.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &tag, UpdateMode: aztables.UpdateModeReplace})
	}
	if err != nil {
		return domain.Project{}, classify("update project", err)
	}
	return next, nil
}

// DeleteProject removes the project row and cascades to its tasks and
// membership rows, which share the project id as partition key.
func (s *Tables) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.projects.DeleteEntity(ctx, projectPartition, id, nil); err != nil {
		return classify("delete project", err)
	}
	for _, client := range []*aztables.Client{s.tasks, s.members} {
		var keys []string
		err := list(ctx, client, "PartitionKey eq "+quote(id), func(data []byte) error {
			var ent struct {
				RowKey string `json:"RowKey"`
			}
			if err := json.Unmarshal(data, &ent); err != nil {
				return err
			}
			keys = append(keys, ent.RowKey)
			return nil
		})
		if err != nil {
			return classify("delete project", err)
		}
		for _, rk := range keys {
			if _, err := client.DeleteEntity(ctx, id, rk, nil); err != nil {
				var respErr *azcore.ResponseError
				if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
					continue
				}
				return classify("delete project", err)
			}
		}
	}
	return nil
}
