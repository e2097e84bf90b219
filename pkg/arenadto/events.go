package arenadto

// Inbound event names consumed from a client connection.
const (
	EvAuthenticate      = "authenticate"
	EvInitGame          = "init_game"
	EvCancelMatchmaking = "cancel_matchmaking"
	EvMove              = "move"
	EvPremove           = "premove"
	EvCancelPremove     = "cancel_premove"
	EvResign            = "resign"
	EvOfferDraw         = "offer_draw"
	EvAcceptDraw        = "accept_draw"
	EvRejectDraw        = "reject_draw"
	EvLeaveGame         = "leave_game"
	EvReconnectToGame   = "reconnect_to_game"
)

// Outbound event names emitted to client connections.
const (
	EvWaiting            = "waiting"
	EvAlreadyInGame      = "already_in_game"
	EvAlreadyWaiting     = "already_waiting"
	EvGameStart          = "game_start"
	EvGameUpdate         = "gameUpdate"
	EvMoveError          = "moveError"
	EvGameOver           = "gameOver"
	EvDrawOffer          = "drawOffer"
	EvDrawOffered        = "drawOffered"
	EvDrawRejected       = "drawRejected"
	EvPlayerDisconnected = "playerDisconnected"
	EvPlayerReconnected  = "playerReconnected"
	EvGameReconnected    = "game_reconnected"
	EvReconnectFailed    = "reconnect_failed"
	EvTimeUpdate         = "timeUpdate"
)
