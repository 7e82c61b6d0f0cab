package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"

	"dealdesk_backend/internal/adapters/storage"
	"dealdesk_backend/internal/opportunities/meetings"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/internal/opportunities/transport"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/validator"
)

// PhotosHandler handles meeting photo uploads. The client uploads directly to
// object storage with a presigned URL, then confirms; on confirm the EXIF
// capture time is read from the stored object.
type PhotosHandler struct {
	repo     *repository.Repository
	meetings *meetings.Service
	storage  storage.StorageService
	bucket   string
	val      *validator.Validator
}

// NewPhotosHandler creates a new meeting photos handler.
func NewPhotosHandler(repo *repository.Repository, meet *meetings.Service, storageSvc storage.StorageService, bucket string, val *validator.Validator) *PhotosHandler {
	return &PhotosHandler{repo: repo, meetings: meet, storage: storageSvc, bucket: bucket, val: val}
}

// RegisterRoutes adds photo routes to a meeting-scoped router group.
// Expected route: /opportunities/meetings/:meetingId/photos
func (h *PhotosHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/presign", h.Presign)
	rg.POST("", h.Confirm)
	rg.GET("", h.List)
	rg.GET("/:photoId/download", h.Download)
	rg.DELETE("/:photoId", h.Delete)
}

// Presign generates a presigned URL for uploading a meeting photo.
func (h *PhotosHandler) Presign(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	meetingID, err := uuid.Parse(c.Param("meetingId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.PhotoPresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	if !storage.IsImageContentType(req.ContentType) {
		httpkit.Error(c, http.StatusBadRequest, "only image uploads are allowed", nil)
		return
	}
	if err := h.storage.ValidateContentType(req.ContentType); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "file type not allowed", nil)
		return
	}
	if err := h.storage.ValidateFileSize(req.SizeBytes); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	rec, err := h.meetings.GetMeeting(c.Request.Context(), meetingID, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	folder := fmt.Sprintf("%s/%s/%s", orgID.String(), rec.OpportunityID.String(), meetingID.String())
	presigned, err := h.storage.GenerateUploadURL(c.Request.Context(), h.bucket, folder, req.FileName, req.ContentType, req.SizeBytes)
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate upload URL", nil)
		return
	}

	httpkit.OK(c, transport.PhotoPresignResponse{
		UploadURL: presigned.URL,
		FileKey:   presigned.FileKey,
		ExpiresAt: presigned.ExpiresAt.Unix(),
	})
}

// Confirm records a photo after its upload to storage succeeded.
func (h *PhotosHandler) Confirm(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	meetingID, err := uuid.Parse(c.Param("meetingId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.ConfirmPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	if !storage.IsImageContentType(req.ContentType) {
		httpkit.Error(c, http.StatusBadRequest, "only image uploads are allowed", nil)
		return
	}

	if _, err := h.meetings.GetMeeting(c.Request.Context(), meetingID, orgID); httpkit.HandleError(c, err) {
		return
	}

	obj, err := h.storage.DownloadFile(c.Request.Context(), h.bucket, req.FileKey)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "uploaded file not found in storage", nil)
		return
	}
	capturedAt := photoCapturedAt(obj)
	obj.Close()

	photo, err := h.repo.CreatePhoto(c.Request.Context(), repository.CreatePhotoParams{
		MeetingID:      meetingID,
		OrganizationID: orgID,
		FileKey:        req.FileKey,
		FileName:       req.FileName,
		ContentType:    req.ContentType,
		SizeBytes:      req.SizeBytes,
		CapturedAt:     capturedAt,
		UploadedBy:     identity.UserID(),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, toPhotoResponse(photo))
}

// List returns all photos for a meeting.
func (h *PhotosHandler) List(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	meetingID, err := uuid.Parse(c.Param("meetingId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	photos, err := h.repo.ListPhotosByMeeting(c.Request.Context(), meetingID, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.PhotoResponse, len(photos))
	for i, photo := range photos {
		items[i] = toPhotoResponse(photo)
	}

	httpkit.OK(c, transport.PhotoListResponse{Items: items})
}

// Download generates a presigned URL for downloading a photo.
func (h *PhotosHandler) Download(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	photoID, err := uuid.Parse(c.Param("photoId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	photo, err := h.repo.GetPhotoByID(c.Request.Context(), photoID, orgID)
	if errors.Is(err, repository.ErrPhotoNotFound) {
		httpkit.Error(c, http.StatusNotFound, "photo not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}

	presigned, err := h.storage.GenerateDownloadURL(c.Request.Context(), h.bucket, photo.FileKey)
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate download URL", nil)
		return
	}

	httpkit.OK(c, transport.PhotoDownloadResponse{
		DownloadURL: presigned.URL,
		ExpiresAt:   presigned.ExpiresAt.Unix(),
	})
}

// Delete removes a photo record and the file from storage.
func (h *PhotosHandler) Delete(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	photoID, err := uuid.Parse(c.Param("photoId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	photo, err := h.repo.GetPhotoByID(c.Request.Context(), photoID, orgID)
	if errors.Is(err, repository.ErrPhotoNotFound) {
		httpkit.Error(c, http.StatusNotFound, "photo not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}

	if err := h.storage.DeleteObject(c.Request.Context(), h.bucket, photo.FileKey); err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to delete file from storage", nil)
		return
	}

	if err := h.repo.DeletePhoto(c.Request.Context(), photoID, orgID); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"message": "photo deleted"})
}

// photoCapturedAt reads the EXIF capture timestamp from an uploaded image.
// Screenshots and stripped uploads have none; that is not an error.
func photoCapturedAt(r io.Reader) *time.Time {
	x, err := exif.Decode(r)
	if err != nil {
		return nil
	}
	captured, err := x.DateTime()
	if err != nil {
		return nil
	}
	return &captured
}

func toPhotoResponse(photo repository.MeetingPhoto) transport.PhotoResponse {
	var contentType string
	if photo.ContentType != nil {
		contentType = *photo.ContentType
	}
	var sizeBytes int64
	if photo.SizeBytes != nil {
		sizeBytes = *photo.SizeBytes
	}

	return transport.PhotoResponse{
		ID:          photo.ID,
		MeetingID:   photo.MeetingID,
		FileKey:     photo.FileKey,
		FileName:    photo.FileName,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		CapturedAt:  photo.CapturedAt,
		UploadedBy:  photo.UploadedBy,
		CreatedAt:   photo.CreatedAt,
	}
}
