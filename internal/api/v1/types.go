package apiv1

// Pong defines model for Pong.
type Pong struct {
	Ping string `json:"ping"`
}
