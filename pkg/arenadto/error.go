package arenadto

// Error codes surfaced to a single client, never broadcast.
const (
	CodeWrongTurn       = "wrong_turn"
	CodeInvalidMove     = "invalid_move"
	CodeAlreadyOver     = "already_over"
	CodeNotAuthorized   = "not_authorized"
	CodeAlreadyInGame   = "already_in_game"
	CodeAlreadyWaiting  = "already_waiting"
	CodePremoveTurn     = "not-your-premove-turn"
	CodeReconnectFailed = "reconnect_failed"
)

// DomainError is a user-surfaceable failure with a stable code.
type DomainError struct {
	Code    string
	Message string
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena error"
}
