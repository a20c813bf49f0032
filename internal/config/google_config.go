package config

import "time"

type GoogleConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetGoogleRedirectURL() string
	GetGoogleRefreshTimeout() time.Duration
	GetLoginStateTimeout() time.Duration
}

type Google struct{}

var _ GoogleConfig = Google{}

func (Google) GetGoogleClientID() string {
	return GetEnv("GOOGLE_CLIENT_ID", "")
}

func (Google) GetGoogleClientSecret() string {
	return GetEnv("GOOGLE_CLIENT_SECRET", "")
}

func (Google) GetGoogleRedirectURL() string {
	return GetEnv("GOOGLE_REDIRECT_URL", "http://localhost:4200/auth/callback")
}

// GetGoogleRefreshTimeout bounds the outbound refresh-token grant
func (Google) GetGoogleRefreshTimeout() time.Duration {
	return GetEnvDuration("GOOGLE_REFRESH_TIMEOUT", 10*time.Second)
}

func (Google) GetLoginStateTimeout() time.Duration {
	return 10 * time.Minute
}
