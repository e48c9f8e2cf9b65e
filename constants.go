package main

// Route constants
const (
	RouteRoom               = "/api/room"
	RouteRoomReady          = "/api/room/ready"
	RouteRoomGuess          = "/api/room/guess"
	RouteRoomScore          = "/api/room/score"
	RouteRoomWords          = "/api/room/words"
	RouteRoomLeave          = "/api/room/leave"
	RouteRoomGameOver       = "/api/room/gameover"
	RouteRoomActivity       = "/api/room/activity"
	RouteRoomCleanup        = "/api/room/cleanup"
	RoutePlayerCount        = "/api/player-count"
	RoutePlayerCountRemove  = "/api/player-count/remove"
	RoutePlayerCountCleanup = "/api/player-count/cleanup"
	RouteSSERoom            = "/api/sse/room"
	RouteSSEPlayerCount     = "/api/sse/player-count"
	RouteHealthz            = "/healthz"
)

// Stable error kinds carried in the error envelope so clients can branch
// without parsing messages.
const (
	KindValidation      = "validation"
	KindNotFound        = "not_found"
	KindForbidden       = "forbidden"
	KindRoomFull        = "room_full"
	KindNicknameTaken   = "nickname_taken"
	KindNotInRoom       = "not_in_room"
	KindAlreadyAdvanced = "already_advanced"
	KindStaleIndex      = "stale_index"
	KindGameOver        = "game_over"
	KindWordsSet        = "words_set"
	KindTryAgain        = "try_again"
	KindInternal        = "internal"
)

// Error message constants
const (
	ErrorMissingPlayerID = "Player ID is required."
	ErrorMissingRoomCode = "Room code and player ID are required."
	ErrorMissingSuccess  = "Room code, player ID, success status, and expected word index are required."
	ErrorMissingPoints   = "Room code, player ID, and points are required."
	ErrorMissingWords    = "Room code, player ID, and words are required."
	ErrorMissingSession  = "No session ID provided."
	ErrorInternal        = "Internal server error."
)

// Session header used by the presence counter (sent by the web client on
// every player-count call).
const SessionIDHeader = "X-Session-Id"

// Context key constants
const (
	requestIDKey contextKey = "request_id"
)

type contextKey string
