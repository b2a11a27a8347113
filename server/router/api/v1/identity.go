package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// IdentityProvider resolves the caller's identity from the request. The chat
// pipeline only needs a stable owner id; how it is established (session,
// token, reverse proxy header) is up to the deployment.
type IdentityProvider interface {
	OwnerID(c echo.Context) (int32, error)
}

// headerIdentityProvider trusts an upstream-injected user header. Intended
// for deployments where an authenticating reverse proxy fronts the server.
type headerIdentityProvider struct {
	header string
}

func NewHeaderIdentityProvider() IdentityProvider {
	return &headerIdentityProvider{header: "X-Parley-User"}
}

func (p *headerIdentityProvider) OwnerID(c echo.Context) (int32, error) {
	value := c.Request().Header.Get(p.header)
	if value == "" {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	id, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	return int32(id), nil
}
