package controllers

import (
	"errors"
	"strings"

	"evalsurvey/backend/config"
	"evalsurvey/backend/models"
	"evalsurvey/backend/utils"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/gofiber/fiber/v2"
)

type AuthController struct {
	DB  *gorm.DB
	Cfg *config.Config
}

func NewAuthController(db *gorm.DB, cfg *config.Config) *AuthController {
	return &AuthController{DB: db, Cfg: cfg}
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// [+] Register godoc
// @Summary Register a new user
// @Description Creates a new user account
// @Tags auth
// @Accept json
// @Produce json
// @Param user body RegisterRequest true "User registration data"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /auth/register [post]
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var input RegisterRequest
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Cannot parse JSON",
		})
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := validate.Struct(&input); err != nil {
		return utils.ValidationError(c, validationDetails(err))
	}

	var count int64
	if err := ac.DB.Model(&models.UserProfile{}).Where("email = ?", input.Email).Count(&count).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}
	if count > 0 {
		return utils.Error(c, fiber.StatusConflict, "Email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not hash password",
		})
	}

	user := models.UserProfile{
		Email:        input.Email,
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: string(hashedPassword),
		Role:         models.RoleUser,
	}
	if ac.Cfg.IsAdminEmail(user.Email) {
		user.Role = models.RoleAdmin
	}
	if err := ac.DB.Create(&user).Error; err != nil {
		return utils.InternalServerError(c, "Could not create user", err.Error())
	}

	return ac.tokenResponse(c, fiber.StatusCreated, &user)
}

// [+] Login godoc
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /auth/login [post]
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var input LoginRequest
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Cannot parse JSON",
		})
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := validate.Struct(&input); err != nil {
		return utils.ValidationError(c, validationDetails(err))
	}

	var user models.UserProfile
	if err := ac.DB.Where("email = ?", input.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid credentials",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not query database",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	return ac.tokenResponse(c, fiber.StatusOK, &user)
}

func (ac *AuthController) tokenResponse(c *fiber.Ctx, status int, user *models.UserProfile) error {
	token, err := utils.GenerateJWTToken(user, ac.Cfg)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not generate token",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}
