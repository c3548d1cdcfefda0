package middleware

import (
	"net/http"

	"racketoutlet-be/internal/auth"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authenticate resolves the access token (if any) into the request context.
// Requests without a valid token continue anonymously; RequireAuth decides.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := auth.ExtractAccessToken(c.Request)
		if tokenStr == "" {
			c.Next()
			return
		}

		claims, err := auth.ParseToken(tokenStr, secret)
		if err != nil {
			logger.FromCtx(c.Request.Context()).Debug("rejected access token", zap.Error(err))
			c.Next()
			return
		}

		ctx := utils.SetUserContext(c.Request.Context(), claims.UserID, claims.Email, claims.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIDFromContext(c.Request.Context()); !ok {
			utils.WriteJSONError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.IsAdmin(c.Request.Context()) {
			utils.WriteJSONError(c, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		c.Next()
	}
}
