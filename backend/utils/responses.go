package utils

import (
	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// PaginatedResponse wraps one page of a listing.
type PaginatedResponse struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// Error writes an error body with optional details.
func Error(c *fiber.Ctx, status int, message string, details ...interface{}) error {
	response := ErrorResponse{Error: message}
	if len(details) > 0 {
		response.Details = details[0]
	}
	return c.Status(status).JSON(response)
}

func Paginate(c *fiber.Ctx, data interface{}, total int64, page int, pageSize int) error {
	return c.JSON(PaginatedResponse{
		Data:     data,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// ValidationError reports field errors collected by the validator.
func ValidationError(c *fiber.Ctx, errors map[string]string) error {
	return Error(c, fiber.StatusBadRequest, "Invalid request", errors)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, message)
}

func BadRequest(c *fiber.Ctx, message string, details ...interface{}) error {
	return Error(c, fiber.StatusBadRequest, message, details...)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, message)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, message)
}

func InternalServerError(c *fiber.Ctx, message string, details ...interface{}) error {
	return Error(c, fiber.StatusInternalServerError, message, details...)
}
