package middleware

import (
	"net/http"
	"strings"

	"buildledger/internal/common"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// JWTMiddleware validates the bearer token and puts the user id on the
// request context.
func JWTMiddleware(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return common.SendError(c, http.StatusUnauthorized, "missing token")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return common.SendError(c, http.StatusUnauthorized, "invalid token format")
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.NewHTTPError(http.StatusUnauthorized, "unexpected signing method")
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				return common.SendError(c, http.StatusUnauthorized, "invalid token")
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return common.SendError(c, http.StatusUnauthorized, "invalid claims")
			}

			sub, ok := claims["sub"].(string)
			if !ok {
				return common.SendError(c, http.StatusUnauthorized, "missing subject in token")
			}

			userID, err := uuid.Parse(sub)
			if err != nil {
				return common.SendError(c, http.StatusUnauthorized, "invalid subject format")
			}

			c.SetRequest(c.Request().WithContext(common.WithUserID(c.Request().Context(), userID)))
			return next(c)
		}
	}
}
