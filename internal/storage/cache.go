package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

type backend interface {
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	FetchProjects(ctx context.Context) ([]domain.Project, error)
	FetchProfiles(ctx context.Context) ([]domain.Profile, error)
	UpsertProfile(ctx context.Context, p domain.Profile) error
	CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	CreateProject(ctx context.Context, ownerID string, draft domain.ProjectDraft) (domain.Project, error)
	AddMember(ctx context.Context, projectID, userID string) error
	UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

const cachePrefix = "taskboard:"

// Cache wraps a backend with Redis-backed caching for read operations. Every
// write evicts the collections it can affect.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client or zero TTL disables caching.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	key := tasksCacheKey(projectID)
	var tasks []domain.Task
	if c.load(ctx, key, &tasks) {
		return tasks, nil
	}
	ver, ok := c.version(ctx, tasksVersionKey)
	tasks, err := c.base.FetchTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, key, tasksVersionKey, ver, tasks)
	}
	return tasks, nil
}

func (c *Cache) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	var projects []domain.Project
	if c.load(ctx, projectsCacheKey, &projects) {
		return projects, nil
	}
	ver, ok := c.version(ctx, projectsVersionKey)
	projects, err := c.base.FetchProjects(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, projectsCacheKey, projectsVersionKey, ver, projects)
	}
	return projects, nil
}

func (c *Cache) FetchProfiles(ctx context.Context) ([]domain.Profile, error) {
	var profiles []domain.Profile
	if c.load(ctx, profilesCacheKey, &profiles) {
		return profiles, nil
	}
	ver, ok := c.version(ctx, profilesVersionKey)
	profiles, err := c.base.FetchProfiles(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, profilesCacheKey, profilesVersionKey, ver, profiles)
	}
	return profiles, nil
}

func (c *Cache) UpsertProfile(ctx context.Context, p domain.Profile) error {
	if err := c.base.UpsertProfile(ctx, p); err != nil {
		return err
	}
	c.evict(ctx, profilesVersionKey, profilesCacheKey)
	return nil
}

func (c *Cache) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	t, err := c.base.CreateTask(ctx, draft)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTasks(ctx)
	return t, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	t, err := c.base.UpdateTask(ctx, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTasks(ctx)
	return t, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evictTasks(ctx)
	return nil
}

func (c *Cache) CreateProject(ctx context.Context, ownerID string, draft domain.ProjectDraft) (domain.Project, error) {
	p, err := c.base.CreateProject(ctx, ownerID, draft)
	if err != nil {
		return domain.Project{}, err
	}
	c.evict(ctx, projectsVersionKey, projectsCacheKey)
	return p, nil
}

func (c *Cache) AddMember(ctx context.Context, projectID, userID string) error {
	return c.base.AddMember(ctx, projectID, userID)
}

func (c *Cache) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	p, err := c.base.UpdateProject(ctx, id, patch)
	if err != nil {
		return domain.Project{}, err
	}
	c.evict(ctx, projectsVersionKey, projectsCacheKey)
	return p, nil
}

func (c *Cache) DeleteProject(ctx context.Context, id string) error {
	if err := c.base.DeleteProject(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, projectsVersionKey, projectsCacheKey)
	c.evictTasks(ctx)
	return nil
}

func (c *Cache) load(ctx context.Context, key string, v any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

// version reads the eviction counter of a collection before it is fetched
// from the backend. ok is false when the entry must not be cached.
func (c *Cache) version(ctx context.Context, verKey string) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	v, err := c.redis.Get(ctx, verKey).Result()
	switch {
	case err == redis.Nil:
		return "", true
	case err != nil:
		return "", false
	}
	return v, true
}

// storeIfCurrent writes KEYS[1] only while the counter at KEYS[2] still holds
// the value read before the backend fetch.
var storeIfCurrent = redis.NewScript(`
local v = redis.call("GET", KEYS[2])
if (v or "") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// store fills key unless a write evicted the collection after ver was read.
func (c *Cache) store(ctx context.Context, key, verKey, ver string, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	ttl := c.ttl.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	_ = storeIfCurrent.Run(ctx, c.redis, []string{key, verKey}, ver, data, ttl).Err()
}

// evict bumps the collection's counter at verKey and deletes its entries.
func (c *Cache) evict(ctx context.Context, verKey string, keys ...string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Incr(ctx, verKey).Err()
	_, _ = c.redis.Del(ctx, keys...).Result()
}

// evictTasks removes every cached task collection: the unscoped one and each
// per-project one, since a single task write can change several of them.
func (c *Cache) evictTasks(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Incr(ctx, tasksVersionKey).Err()
	iter := c.redis.Scan(ctx, 0, cachePrefix+"tasks:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_, _ = c.redis.Del(ctx, keys...).Result()
	}
}

const (
	projectsCacheKey = cachePrefix + "projects"
	profilesCacheKey = cachePrefix + "profiles"

	tasksVersionKey    = cachePrefix + "version:tasks"
	projectsVersionKey = cachePrefix + "version:projects"
	profilesVersionKey = cachePrefix + "version:profiles"
)

// tasksCacheKey is "taskboard:tasks:" for the unscoped collection.
func tasksCacheKey(projectID string) string {
	return cachePrefix + "tasks:" + projectID
}
