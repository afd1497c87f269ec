package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/yashrajoria/docstore-service/common/errors"
	"golang.org/x/crypto/bcrypt"
)

var (
	errNoCredentials  = errors.New("missing basic auth credentials")
	errBadCredentials = errors.New("invalid basic auth credentials")
)

const authRealm = `Basic realm="docstore", charset="UTF-8"`

// BasicAuth admits requests carrying the configured credential. secret may
// be a bcrypt hash ($2a$, $2b$ or $2y$) or the plain password.
func BasicAuth(user, secret string) gin.HandlerFunc {
	hashed := isBcryptHash(secret)

	return func(c *gin.Context) {
		u, p, ok := c.Request.BasicAuth()
		if !ok || !validCredential(u, p, user, secret, hashed) {
			cause := errBadCredentials
			if !ok {
				cause = errNoCredentials
			}
			c.Header("WWW-Authenticate", authRealm)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			_ = c.Error(apperrors.Unauthorized(cause))
			return
		}
		c.Set(gin.AuthUserKey, u)
		c.Next()
	}
}

func validCredential(u, p, user, secret string, hashed bool) bool {
	userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
	var passOK bool
	if hashed {
		passOK = bcrypt.CompareHashAndPassword([]byte(secret), []byte(p)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(p), []byte(secret)) == 1
	}
	return userOK && passOK
}

func isBcryptHash(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
