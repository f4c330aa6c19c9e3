package storage

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

const edmInt64 = "Edm.Int64"

const (
	projectPartition = "project"
	profilePartition = "profile"
)

// taskEntity is a task row: PartitionKey is the project id, RowKey the task id.
type taskEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	ETag          string `json:"odata.etag,omitempty"`
	Title         string `json:"Title"`
	Description   string `json:"Description,omitempty"`
	AssignedTo    string `json:"AssignedTo,omitempty"`
	Priority      string `json:"Priority"`
	Status        string `json:"Status"`
	DueDate       *int64 `json:"DueDate,omitempty,string"`
	DueDateType   string `json:"DueDate@odata.type,omitempty"`
	Tags          string `json:"Tags"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type projectEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	ETag          string `json:"odata.etag,omitempty"`
	Name          string `json:"Name"`
	Description   string `json:"Description,omitempty"`
	OwnerID       string `json:"OwnerID"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type profileEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Name         string `json:"Name"`
}

type memberEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	JoinedAt     int64  `json:"JoinedAt,string"`
	JoinedAtType string `json:"JoinedAt@odata.type"`
}

func toTaskEntity(t domain.Task) (taskEntity, error) {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	rawTags, err := json.Marshal(tags)
	if err != nil {
		return taskEntity{}, err
	}
	ent := taskEntity{
		PartitionKey:  t.ProjectID,
		RowKey:        t.ID,
		Title:         t.Title,
		Description:   t.Description,
		AssignedTo:    t.AssignedTo,
		Priority:      string(t.Priority),
		Status:        string(t.Status),
		Tags:          string(rawTags),
		CreatedAt:     t.CreatedAt.UnixNano(),
		CreatedAtType: edmInt64,
		UpdatedAt:     t.UpdatedAt.UnixNano(),
		UpdatedAtType: edmInt64,
	}
	if t.DueDate != nil {
		due := t.DueDate.UnixNano()
		ent.DueDate = &due
		ent.DueDateType = edmInt64
	}
	return ent, nil
}

func decodeTaskEntity(data []byte) (domain.Task, string, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, "", err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		ProjectID:   ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		AssignedTo:  ent.AssignedTo,
		Priority:    domain.Priority(ent.Priority),
		Status:      domain.Status(ent.Status),
		Tags:        []string{},
		CreatedAt:   time.Unix(0, ent.CreatedAt).UTC(),
		UpdatedAt:   time.Unix(0, ent.UpdatedAt).UTC(),
	}
	if ent.DueDate != nil {
		due := time.Unix(0, *ent.DueDate).UTC()
		t.DueDate = &due
	}
	if ent.Tags != "" {
		if err := json.Unmarshal([]byte(ent.Tags), &t.Tags); err != nil {
			return domain.Task{}, "", err
		}
	}
	return t, ent.ETag, nil
}

func toProjectEntity(p domain.Project) projectEntity {
	return projectEntity{
		PartitionKey:  projectPartition,
		RowKey:        p.ID,
		Name:          p.Name,
		Description:   p.Description,
		OwnerID:       p.OwnerID,
		CreatedAt:     p.CreatedAt.UnixNano(),
		CreatedAtType: edmInt64,
		UpdatedAt:     p.UpdatedAt.UnixNano(),
		UpdatedAtType: edmInt64,
	}
}

func decodeProjectEntity(data []byte) (domain.Project, error) {
	var ent projectEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Project{}, err
	}
	return projectFromEntity(ent), nil
}

func projectFromEntity(ent projectEntity) domain.Project {
	return domain.Project{
		ID:          ent.RowKey,
		Name:        ent.Name,
		Description: ent.Description,
		OwnerID:     ent.OwnerID,
		CreatedAt:   time.Unix(0, ent.CreatedAt).UTC(),
		UpdatedAt:   time.Unix(0, ent.UpdatedAt).UTC(),
	}
}

func decodeProfileEntity(data []byte) (domain.Profile, error) {
	var ent profileEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{UserID: ent.RowKey, Name: ent.Name}, nil
}

// quote escapes a value for use inside an OData string literal.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func sortTasksNewestFirst(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

func sortProjectsNewestFirst(projects []domain.Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
}
