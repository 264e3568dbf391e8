package models

import "time"

// Task belongs to exactly one user.
type Task struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	UserID    int64      `json:"userId"`
	User      *TaskOwner `json:"user,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TaskOwner is the minimal owner identity joined onto listed tasks.
type TaskOwner struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
