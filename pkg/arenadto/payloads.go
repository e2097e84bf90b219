package arenadto

// Envelope is the wire framing for every event in both directions.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// AuthRequest binds a durable identity to the connection. Empty email
// produces a guest identity; a guest token makes that identity stable
// across connections.
type AuthRequest struct {
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	GuestToken string `json:"guestToken,omitempty"`
}

// MoveRequest is the client move / premove payload.
type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// ReconnectRequest asks to rebind the connection to a live match.
type ReconnectRequest struct {
	GameRoute string `json:"gameRoute"`
}

// OpponentSummary is the public view of the other player.
type OpponentSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

// ClockState mirrors both remaining times in milliseconds.
type ClockState struct {
	White       int64  `json:"white"`
	Black       int64  `json:"black"`
	ActiveColor string `json:"activeColor"`
}

// GameStart notifies a queued player that a match began.
type GameStart struct {
	MatchID  string          `json:"matchId"`
	Route    string          `json:"route"`
	Color    string          `json:"color"`
	Opponent OpponentSummary `json:"opponent"`
	Clock    ClockState      `json:"clock"`
}

// LastMove describes the most recently applied move.
type LastMove struct {
	From  string `json:"from"`
	To    string `json:"to"`
	SAN   string `json:"san"`
	UCI   string `json:"uci"`
	Color string `json:"color"`
}

// GameUpdate is broadcast to both players after every accepted move.
type GameUpdate struct {
	Position    string     `json:"position"`
	LastMove    *LastMove  `json:"lastMove,omitempty"`
	IsCheck     bool       `json:"isCheck"`
	IsCheckmate bool       `json:"isCheckmate"`
	IsDraw      bool       `json:"isDraw"`
	Turn        string     `json:"turn"`
	Clock       ClockState `json:"clock"`
}

// MoveError is sent only to the player whose submission failed.
type MoveError struct {
	Error     string       `json:"error"`
	Attempted *MoveRequest `json:"attempted,omitempty"`
}

// GameOver is broadcast to both players once the match is terminal.
type GameOver struct {
	Reason       string `json:"reason"`
	Winner       string `json:"winner,omitempty"`
	WinnerColor  string `json:"winnerColor,omitempty"`
	PlayerResult string `json:"playerResult"`
}

// DrawNotice carries draw offer / rejection messages.
type DrawNotice struct {
	Message string `json:"message"`
}

// DisconnectNotice tells the remaining player how long the grace period is.
type DisconnectNotice struct {
	Message   string `json:"message"`
	TimeoutMs int64  `json:"timeoutMs"`
}

// ReconnectNotice tells the remaining player the opponent is back.
type ReconnectNotice struct {
	Message string `json:"message"`
}

// Snapshot is the full reconstructable state for a reconnecting player.
type Snapshot struct {
	MatchID  string      `json:"matchId"`
	Route    string      `json:"route"`
	Position string      `json:"position"`
	MovesSAN []string    `json:"movesSan"`
	MovesUCI []string    `json:"movesUci"`
	Turn     string      `json:"turn"`
	Status   string      `json:"status"`
	Clock    ClockState  `json:"clock"`
	White    PlayerBrief `json:"white"`
	Black    PlayerBrief `json:"black"`
	Result   *GameOver   `json:"result,omitempty"`
}

// PlayerBrief identifies one seat of a match.
type PlayerBrief struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

// GameReconnected is the reply to a successful reconnect_to_game.
type GameReconnected struct {
	Snapshot    Snapshot `json:"snapshot"`
	PlayerColor string   `json:"playerColor"`
}

// ReconnectFailed is the reply to a failed reconnect_to_game.
type ReconnectFailed struct {
	Error string `json:"error"`
}

// Waiting acknowledges a matchmaking enqueue.
type Waiting struct {
	Message string `json:"message"`
}
