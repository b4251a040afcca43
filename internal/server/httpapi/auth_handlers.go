package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/server/services"
	"github.com/gin-gonic/gin"
)

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *handlers) register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request data")
		return
	}

	u, err := h.Users.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Username is already taken"})
			return
		}
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": u.ID, "username": u.UserName, "email": u.Email})
}

func (h *handlers) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request data")
		return
	}

	pair, err := h.Users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		h.fail(c, err)
		return
	}

	h.setTokenCookies(c, pair)
	c.JSON(http.StatusOK, pair)
}

func (h *handlers) refresh(c *gin.Context) {
	token := refreshTokenFrom(c)
	if token == "" {
		badRequest(c, "Refresh token required")
		return
	}

	pair, err := h.Users.RefreshToken(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setTokenCookies(c, pair)
	c.JSON(http.StatusOK, pair)
}

func (h *handlers) logout(c *gin.Context) {
	if err := h.Users.Logout(c.Request.Context(), refreshTokenFrom(c)); err != nil {
		h.fail(c, err)
		return
	}
	h.clearTokenCookies(c)
	c.Status(http.StatusNoContent)
}

// refreshTokenFrom prefers the cookie and falls back to a JSON body.
func refreshTokenFrom(c *gin.Context) string {
	if v, err := c.Cookie(common.RefreshTokenCookieName); err == nil && v != "" {
		return v
	}
	var body refreshRequest
	if err := c.ShouldBindJSON(&body); err == nil {
		return body.Refresh
	}
	return ""
}

func (h *handlers) setTokenCookies(c *gin.Context, pair *services.TokenPair) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.AccessTokenCookieName, pair.AccessToken,
		int(h.cfg.AccessTokenValidityDuration.Seconds()), "/", "", h.cfg.CookieSecure, true)
	c.SetCookie(common.RefreshTokenCookieName, pair.RefreshToken,
		int(h.cfg.RefreshTokenValidityDuration.Seconds()), "/api/", "", h.cfg.CookieSecure, true)
}

func (h *handlers) clearTokenCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.AccessTokenCookieName, "", -1, "/", "", h.cfg.CookieSecure, true)
	c.SetCookie(common.RefreshTokenCookieName, "", -1, "/api/", "", h.cfg.CookieSecure, true)
}
