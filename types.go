package main

// Request payloads for the JSON API. Pointer fields distinguish "absent"
// from zero values where the zero value is meaningful.

type createRoomRequest struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Random   bool   `json:"random"`
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
}

type roomActionRequest struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type guessRequest struct {
	RoomCode          string `json:"roomCode"`
	PlayerID          string `json:"playerId"`
	Success           *bool  `json:"success"`
	Solution          string `json:"solution"`
	ExpectedWordIndex *int   `json:"expectedWordIndex"`
}

type scoreRequest struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	Points   *int   `json:"points"`
}

type wordsRequest struct {
	RoomCode string   `json:"roomCode"`
	PlayerID string   `json:"playerId"`
	Words    []string `json:"words"`
}

type gameOverRequest struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	Winner   string `json:"winner"`
}
