package controllers

import (
	"evalsurvey/backend/config"
	"evalsurvey/backend/models"
	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UserController struct {
	DB  *gorm.DB
	Cfg *config.Config
}

func NewUserController(db *gorm.DB, cfg *config.Config) *UserController {
	return &UserController{DB: db, Cfg: cfg}
}

// GetProfile godoc
// @Summary Get user profile
// @Description Returns authenticated user's profile data
// @Tags users
// @Accept json
// @Produce json
// @Success 200 {object} models.UserProfile
// @Failure 401 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /user/profile [get]
func (uc *UserController) GetProfile(c *fiber.Ctx) error {
	claims, ok := utils.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var user models.UserProfile
	if err := uc.DB.WithContext(c.UserContext()).First(&user, "id = ?", claims.UserID).Error; err != nil {
		return utils.NotFound(c, "User not found")
	}

	return c.JSON(user)
}
