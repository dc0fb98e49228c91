package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dermalens/dermalens-backend/internal/services"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (uh *UserHandler) GetMe(c *gin.Context) {
	user, err := uh.userService.GetMe(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, user)
}

func (uh *UserHandler) UpdateSkinProfile(c *gin.Context) {
	var req struct {
		SkinType       string `json:"skin_type"`
		PrimaryConcern string `json:"primary_concern"`
		Sensitivity    bool   `json:"sensitivity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	user, err := uh.userService.UpdateSkinProfile(c.Request.Context(), req.SkinType, req.PrimaryConcern, req.Sensitivity)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, user)
}
