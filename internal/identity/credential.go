package identity

import (
	"fmt"
	"strings"

	"github.com/ashureev/chat-widget/internal/domain"
	"github.com/containerd/errdefs"
	"github.com/golang-jwt/jwt/v5"
)

// DecodeCredential reads the name and email claims from an identity-provider
// credential. The signature is not verified here: the token arrives straight
// from the provider's sign-in callback and only its payload is consumed.
func DecodeCredential(credential string) (domain.Profile, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Profile{}, fmt.Errorf("credential is empty: %w", errdefs.ErrUnauthenticated)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return domain.Profile{}, fmt.Errorf("decode credential: %w: %w", errdefs.ErrUnauthenticated, err)
	}

	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	profile := domain.Profile{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	if !profile.Complete() {
		return domain.Profile{}, fmt.Errorf("credential missing name or email: %w", errdefs.ErrUnauthenticated)
	}
	return profile, nil
}
