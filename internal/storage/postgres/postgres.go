// Package postgres is a pgx-backed task store. Referential integrity, including
// the project cascade, is enforced by the schema.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

//go:embed schema.sql
var Schema string

const taskColumns = `id::text, title, description, project_id::text, assigned_to, priority, status, due_date, tags, created_at, updated_at`

const projectColumns = `id::text, name, description, owner_id, created_at, updated_at`

type Backend struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func New(db *pgxpool.Pool) *Backend {
	return &Backend{db: db, now: time.Now}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, Schema)
	return err
}

// classify maps driver errors into the domain error taxonomy. Missing rows,
// integrity violations (class 23) and bad input data (class 22) are
// rejections; everything else is a transport failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Rejected(op, "not found", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return domain.Rejected(op, pgErr.Message, err)
		case strings.HasPrefix(pgErr.Code, "22"):
			return domain.Rejected(op, "invalid value", err)
		}
	}
	return domain.Transport(op, err)
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		t        domain.Task
		priority string
		status   string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.ProjectID, &t.AssignedTo, &priority, &status, &t.DueDate, &t.Tags, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	t.Priority = domain.Priority(priority)
	t.Status = domain.Status(status)
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		t.DueDate = &due
	}
	return t, nil
}

func scanProject(row pgx.Row) (domain.Project, error) {
	var p domain.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Project{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// FetchTasks lists tasks newest first, scoped to a project when projectID is set.
func (b *Backend) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = $1`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("fetch tasks", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, classify("fetch tasks", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("fetch tasks", err)
	}
	return tasks, nil
}

func (b *Backend) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := b.db.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, classify("fetch projects", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, classify("fetch projects", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("fetch projects", err)
	}
	return projects, nil
}

func (b *Backend) FetchProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := b.db.Query(ctx, `SELECT user_id, name FROM profiles ORDER BY name`)
	if err != nil {
		return nil, classify("fetch profiles", err)
	}
	defer rows.Close()

	profiles := []domain.Profile{}
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.UserID, &p.Name); err != nil {
			return nil, classify("fetch profiles", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("fetch profiles", err)
	}
	return profiles, nil
}

// UpsertProfile records the display name of a user.
func (b *Backend) UpsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := b.db.Exec(ctx, `INSERT INTO profiles (user_id, name) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name`, p.UserID, p.Name)
	return classify("upsert profile", err)
}

func (b *Backend) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	tags := draft.Tags
	if tags == nil {
		tags = []string{}
	}
	row := b.db.QueryRow(ctx, `INSERT INTO tasks (title, description, project_id, assigned_to, priority, status, due_date, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+taskColumns,
		draft.Title, draft.Description, draft.ProjectID, draft.AssignedTo, string(draft.Priority), string(draft.Status), draft.DueDate, tags)
	t, err := scanTask(row)
	if err != nil {
		return domain.Task{}, classify("create task", err)
	}
	return t, nil
}

// buildTaskUpdate renders the SET clause for patch. The id is always the
// first placeholder.
func buildTaskUpdate(patch domain.TaskPatch, now time.Time) (string, []any) {
	sets := []string{}
	args := []any{nil}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Title != nil {
		add("title", strings.TrimSpace(*patch.Title))
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.AssignedTo != nil {
		add("assigned_to", *patch.AssignedTo)
	}
	if patch.Priority != nil {
		add("priority", string(*patch.Priority))
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.DueDate != nil {
		add("due_date", *patch.DueDate)
	}
	if patch.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = []string{}
		}
		add("tags", tags)
	}
	add("updated_at", now)
	return strings.Join(sets, ", "), args
}

func (b *Backend) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	set, args := buildTaskUpdate(patch, b.now().UTC())
	args[0] = id
	row := b.db.QueryRow(ctx, `UPDATE tasks SET `+set+` WHERE id = $1 RETURNING `+taskColumns, args...)
	t, err := scanTask(row)
	if err != nil {
		return domain.Task{}, classify("update task", err)
	}
	return t, nil
}

func (b *Backend) DeleteTask(ctx context.Context, id string) error {
	tag, err := b.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return classify("delete task", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Rejected("delete task", "not found", nil)
	}
	return nil
}

func (b *Backend) CreateProject(ctx context.Context, ownerID string, draft domain.ProjectDraft) (domain.Project, error) {
	row := b.db.QueryRow(ctx, `INSERT INTO projects (name, description, owner_id) VALUES ($1, $2, $3) RETURNING `+projectColumns,
		draft.Name, draft.Description, ownerID)
	p, err := scanProject(row)
	if err != nil {
		return domain.Project{}, classify("create project", err)
	}
	return p, nil
}

func (b *Backend) AddMember(ctx context.Context, projectID, userID string) error {
	_, err := b.db.Exec(ctx, `INSERT INTO project_members (project_id, user_id) VALUES ($1, $2)
		ON CONFLICT (project_id, user_id) DO NOTHING`, projectID, userID)
	return classify("add project member", err)
}

func (b *Backend) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	row := b.db.QueryRow(ctx, `UPDATE projects SET
		name = COALESCE($2, name),
		description = COALESCE($3, description),
		updated_at = $4
		WHERE id = $1 RETURNING `+projectColumns,
		id, trimmed(patch.Name), patch.Description, b.now().UTC())
	p, err := scanProject(row)
	if err != nil {
		return domain.Project{}, classify("update project", err)
	}
	return p, nil
}

// DeleteProject removes the project; tasks and memberships follow through
// ON DELETE CASCADE.
func (b *Backend) DeleteProject(ctx context.Context, id string) error {
	tag, err := b.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return classify("delete project", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Rejected("delete project", "not found", nil)
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
