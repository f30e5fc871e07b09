package app

import (
	"github.com/charlesng35/motorlist/internal/auth"
	"github.com/charlesng35/motorlist/internal/services"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// TokenSettings converts AuthConfig into account token service parameters.
// Zero values fall back to the service defaults.
func (c AuthConfig) TokenSettings() services.TokenSettings {
	return services.TokenSettings{
		ActivationTTL: c.Tokens.ActivationTTL,
		ResetTTL:      c.Tokens.ResetTTL,
		ResetThrottle: c.Tokens.ResetThrottle,
		TokenBytes:    c.Tokens.TokenBytes,
	}
}

// CaptchaVerifier returns the configured verifier, or nil when captcha checks are off.
func (c AuthConfig) CaptchaVerifier() services.CaptchaVerifier {
	if !c.Captcha.Enabled {
		return nil
	}
	if verifier := services.NewStaticCaptcha(c.Captcha.Answer); verifier != nil {
		return verifier
	}
	return nil
}
