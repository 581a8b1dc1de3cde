package config

// APIConfig configures the operational HTTP endpoint exposing run history,
// latest schedules and Prometheus metrics.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
	// Token, when set, is required as a bearer token on every request.
	Token string `json:"token"`
}

func (c APIConfig) Addr() string {
	if c.Address == "" {
		return ":8080"
	}
	return c.Address
}
