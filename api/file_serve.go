package api

import (
	"errors"
	"net/http"
	"time"

	"nanohost/storage-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FileServe redirects to a short-lived presigned download for a hosted
// object. Expired or never-uploaded objects are indistinguishable from
// missing ones
func (a *API) FileServe(c *gin.Context) {
	objectID := c.Param("objectID")

	var file model.File
	err := a.DB.
		Where("object_id = ?", objectID).
		First(&file).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortError(c, http.StatusNotFound, errNotFound, "No such file.")
			return
		}

		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred.")
		zap.L().Error("Failed to look up file", zap.Error(err))
		return
	}

	if !file.Uploaded || !file.Available || (file.DeleteAfter > 0 && file.DeleteAfter < time.Now().Unix()) {
		abortError(c, http.StatusNotFound, errNotFound, "No such file.")
		return
	}

	url, err := a.Store.PresignDownload(c.Request.Context(), "cdn/"+file.ObjectID, a.Hosting.DownloadTTL)
	if err != nil {
		abortError(c, http.StatusInternalServerError, errInternal, "An internal error has occurred while preparing the download.")
		zap.L().Error("Failed to presign download", zap.Error(err))
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, url)
}
