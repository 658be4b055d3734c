package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/campus-import-api/pkg/errors"
	"github.com/noah-isme/campus-import-api/pkg/response"
)

// Forwarded identity headers. Authentication happens at the platform gateway;
// this service trusts what the gateway injects.
const (
	HeaderUserID        = "X-User-Id"
	HeaderUserType      = "X-User-Type"
	HeaderInstitutionID = "X-Institution-Id"

	identityKey = "identity"
)

// Identity is the caller as asserted by the gateway.
type Identity struct {
	UserID        string
	UserType      string
	InstitutionID string
}

// RequireIdentity rejects requests without a forwarded user identity and
// stores the identity on the request context for handlers.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := Identity{
			UserID:        c.GetHeader(HeaderUserID),
			UserType:      c.GetHeader(HeaderUserType),
			InstitutionID: c.GetHeader(HeaderInstitutionID),
		}
		if identity.UserID == "" || identity.UserType == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFromContext returns the caller identity, or nil when absent.
func IdentityFromContext(c *gin.Context) *Identity {
	value, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, ok := value.(Identity)
	if !ok {
		return nil
	}
	return &identity
}
