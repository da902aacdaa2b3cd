package controllers

import (
	"errors"

	"evalsurvey/backend/config"
	"evalsurvey/backend/models"
	"evalsurvey/backend/storage"
	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxUploadFiles = 20

type FilesController struct {
	DB    *gorm.DB
	Cfg   *config.Config
	Store storage.FileStore
	Log   *utils.Logger
}

func NewFilesController(db *gorm.DB, cfg *config.Config, store storage.FileStore, log *utils.Logger) *FilesController {
	return &FilesController{DB: db, Cfg: cfg, Store: store, Log: log.With("controller", "files")}
}

// UploadFiles godoc
// @Summary Upload evidence files
// @Description Stores every file of the multipart "files" field and records it
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Files to upload"
// @Success 201 {array} models.UploadedFile
// @Failure 400 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/files [post]
func (fc *FilesController) UploadFiles(c *fiber.Ctx) error {
	ctx := c.UserContext()
	form, err := c.MultipartForm()
	if err != nil {
		return utils.BadRequest(c, "Expected multipart form data")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return utils.BadRequest(c, "No files provided")
	}
	if len(headers) > maxUploadFiles {
		return utils.BadRequest(c, "Too many files", fiber.Map{"max": maxUploadFiles})
	}

	var uploader *uuid.UUID
	if claims, ok := utils.ClaimsFromContext(c); ok {
		if id, err := uuid.Parse(claims.UserID); err == nil {
			uploader = &id
		}
	}

	saved := make([]models.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		contentType := fh.Header.Get(fiber.HeaderContentType)
		if contentType == "" {
			contentType = fiber.MIMEOctetStream
		}
		key := storage.ObjectKey(fh.Filename)

		f, err := fh.Open()
		if err != nil {
			return utils.BadRequest(c, "Could not read file", fh.Filename)
		}
		err = fc.Store.Upload(ctx, key, contentType, f)
		_ = f.Close()
		if err != nil {
			fc.Log.Error("upload failed", "file", fh.Filename, "error", err)
			return utils.InternalServerError(c, "Could not upload file", fiber.Map{"file": fh.Filename, "error": err.Error()})
		}

		rec := models.UploadedFile{
			Name:        fh.Filename,
			ObjectKey:   key,
			URL:         fc.Store.PublicURL(key),
			ContentType: contentType,
			Size:        fh.Size,
			UploadedBy:  uploader,
		}
		if err := fc.DB.WithContext(ctx).Create(&rec).Error; err != nil {
			if derr := fc.Store.Delete(ctx, key); derr != nil {
				fc.Log.Warn("orphaned object after failed insert", "key", key, "error", derr)
			}
			return utils.InternalServerError(c, "Could not record file", err.Error())
		}
		saved = append(saved, rec)
	}

	return utils.Created(c, saved)
}

func (fc *FilesController) ListFiles(c *fiber.Ctx) error {
	var files []models.UploadedFile
	if err := fc.DB.WithContext(c.UserContext()).Order("created_at DESC").Find(&files).Error; err != nil {
		return utils.InternalServerError(c, "Failed to fetch files", err.Error())
	}
	return c.JSON(files)
}

// DeleteFile removes the stored object first and then its record.
func (fc *FilesController) DeleteFile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id, ok := paramUUID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid file id")
	}

	var rec models.UploadedFile
	if err := fc.DB.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(c, "File not found")
		}
		return utils.InternalServerError(c, "Failed to fetch file", err.Error())
	}

	if err := fc.Store.Delete(ctx, rec.ObjectKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		fc.Log.Error("object delete failed", "key", rec.ObjectKey, "error", err)
		return utils.InternalServerError(c, "Could not delete stored file", err.Error())
	}
	if err := fc.DB.WithContext(ctx).Delete(&rec).Error; err != nil {
		return utils.InternalServerError(c, utils.DescribeDeleteError(err), err.Error())
	}
	return utils.NoContent(c)
}
