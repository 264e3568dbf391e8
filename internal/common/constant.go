package common

// AuthorizationHeaderName carries the bearer session token on HTTP requests
// and on the websocket handshake.
const AuthorizationHeaderName = "Authorization"

// TokenQueryParam is the websocket handshake query parameter that may carry
// the session token when headers cannot be set by the client.
const TokenQueryParam = "token"

// Task statuses.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in-progress"
	TaskStatusDone       = "done"
)
