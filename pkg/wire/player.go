package wire

// PlayerMove is the player_move payload. Cell is the grid cell the player
// reports, so the server can check membership without the raw fix.
type PlayerMove struct {
	PlayerID  string  `json:"playerId,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Cell      string  `json:"cell,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// PlayerEvent is the payload of player_join, player_leave and
// player_elimination pushes.
type PlayerEvent struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason,omitempty"`
}
