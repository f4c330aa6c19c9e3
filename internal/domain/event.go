package domain

import "time"

const (
	TableTasks    = "tasks"
	TableProjects = "projects"
	TableMembers  = "project_members"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ChangeEvent is the coarse "something changed" signal carried by the push
// channel. Consumers must re-fetch rather than trust its contents.
type ChangeEvent struct {
	ID       string `json:"id"`
	Table    string `json:"table"`
	Op       string `json:"op"`
	EntityID string `json:"entityId,omitempty"`
	ActorID  string `json:"actorId,omitempty"`
	Time     int64  `json:"time"`
}

func NewChangeEvent(id, table, op, entityID, actorID string, at time.Time) ChangeEvent {
	return ChangeEvent{ID: id, Table: table, Op: op, EntityID: entityID, ActorID: actorID, Time: at.UnixNano()}
}
