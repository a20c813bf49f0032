package config

import "time"

type TokenConfig interface {
	GetTokenIssuer() string
	GetTokenAudience() string
	GetSessionTokenLifetime() time.Duration
	GetRefreshTokenLifetime() time.Duration
	GetTokenPrivateKeyFile() string
	GetTokenPublicKeyFile() string
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

func (Tokens) GetTokenIssuer() string {
	return GetEnv("TOKEN_ISSUER", "sql-console")
}

func (Tokens) GetTokenAudience() string {
	return GetEnv("TOKEN_AUDIENCE", "sql-console-api")
}

func (Tokens) GetSessionTokenLifetime() time.Duration {
	return time.Duration(GetEnvInt("SESSION_TOKEN_LIFETIME_MINUTES", 15)) * time.Minute
}

func (Tokens) GetRefreshTokenLifetime() time.Duration {
	return time.Duration(GetEnvInt("REFRESH_TOKEN_LIFETIME_MINUTES", 24*60)) * time.Minute
}

func (Tokens) GetTokenPrivateKeyFile() string {
	return GetEnv("TOKEN_PRIVATE_KEY_FILE", "./keys/token_private.pem")
}

func (Tokens) GetTokenPublicKeyFile() string {
	return GetEnv("TOKEN_PUBLIC_KEY_FILE", "./keys/token_public.pem")
}
