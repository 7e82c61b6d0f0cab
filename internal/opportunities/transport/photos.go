package transport

import (
	"time"

	"github.com/google/uuid"
)

// PhotoPresignRequest asks for a presigned upload URL for a meeting photo.
type PhotoPresignRequest struct {
	FileName    string `json:"fileName" validate:"required,min=1,max=255"`
	ContentType string `json:"contentType" validate:"required,min=1,max=100"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,min=1"`
}

// PhotoPresignResponse carries the presigned upload URL.
type PhotoPresignResponse struct {
	UploadURL string `json:"uploadUrl"`
	FileKey   string `json:"fileKey"`
	ExpiresAt int64  `json:"expiresAt"` // Unix timestamp
}

// ConfirmPhotoRequest records a photo after its upload succeeded.
type ConfirmPhotoRequest struct {
	FileKey     string `json:"fileKey" validate:"required,min=1,max=500"`
	FileName    string `json:"fileName" validate:"required,min=1,max=255"`
	ContentType string `json:"contentType" validate:"required,min=1,max=100"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,min=1"`
}

// PhotoResponse is the response DTO for a meeting photo.
type PhotoResponse struct {
	ID          uuid.UUID  `json:"id"`
	MeetingID   uuid.UUID  `json:"meetingId"`
	FileKey     string     `json:"fileKey"`
	FileName    string     `json:"fileName"`
	ContentType string     `json:"contentType"`
	SizeBytes   int64      `json:"sizeBytes"`
	CapturedAt  *time.Time `json:"capturedAt,omitempty"`
	UploadedBy  *uuid.UUID `json:"uploadedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// PhotoListResponse is the list of photos for a meeting.
type PhotoListResponse struct {
	Items []PhotoResponse `json:"items"`
}

// PhotoDownloadResponse carries the presigned download URL.
type PhotoDownloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
	ExpiresAt   int64  `json:"expiresAt"` // Unix timestamp
}
