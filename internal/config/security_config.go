package config

type SecurityConfig interface {
	GetRateLimitRPS() float64
	GetRateLimitBurst() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetRateLimitRPS returns the per-IP request rate for the API, 0 disables limiting
func (Security) GetRateLimitRPS() float64 {
	return GetEnvFloat("RATE_LIMIT_RPS", 20)
}

func (Security) GetRateLimitBurst() int {
	return GetEnvInt("RATE_LIMIT_BURST", 40)
}
