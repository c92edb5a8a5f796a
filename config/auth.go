package config

import "strings"

// AuthConfig controls bearer-token authentication for the /api/ routes.
// Authentication is off unless an OIDC issuer is configured.
type AuthConfig struct {
	// Issuer is the OIDC issuer URL used for discovery.
	Issuer string `env:"AUTH_OIDC_ISSUER"`

	// Audience is the expected "aud" claim (the client id tokens are minted for).
	Audience string `env:"AUTH_OIDC_AUDIENCE"`

	// SkipAudienceCheck accepts tokens minted for any client. Development only.
	SkipAudienceCheck bool `env:"AUTH_OIDC_SKIP_AUDIENCE_CHECK" envDefault:"false"`
}

// Sanitize trims whitespace from the configured values.
func (a *AuthConfig) Sanitize() {
	a.Issuer = strings.TrimRight(strings.TrimSpace(a.Issuer), "/")
	a.Audience = strings.TrimSpace(a.Audience)
}

// Enabled reports whether API requests must carry a bearer token.
func (a *AuthConfig) Enabled() bool {
	return a.Issuer != ""
}
