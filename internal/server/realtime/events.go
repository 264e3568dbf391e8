package realtime

import "github.com/dmitrijs2005/taskmanager/internal/server/models"

// Default notification kind.
const NotificationInfo = "info"

func (h *Hub) TaskCreated(userID int64, task *models.Task) {
	h.NotifyUser(userID, EventTaskCreated, task, "New task created")
}

func (h *Hub) TaskUpdated(userID int64, task *models.Task) {
	h.NotifyUser(userID, EventTaskUpdated, task, "Task updated")
}

// TaskDeleted carries only the id of the removed task.
func (h *Hub) TaskDeleted(userID int64, taskID int64) {
	h.NotifyUser(userID, EventTaskDeleted, map[string]int64{"id": taskID}, "Task deleted")
}

// SendNotification pushes a free-form notification to userID. An empty kind means NotificationInfo.
func (h *Hub) SendNotification(userID int64, title, message, kind string) {
	if kind == "" {
		kind = NotificationInfo
	}
	h.NotifyUser(userID, EventNotification, map[string]string{
		"title":            title,
		"message":          message,
		"notificationType": kind,
	}, message)
}
