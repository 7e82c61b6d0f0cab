package imports

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dealdesk_backend/platform/httpkit"
)

// CSV size cap. Provider content types for CSV uploads are unreliable, so
// there is no content-type gate; the synchronous parse in Submit is the gate.
const maxImportUploadBytes = 10 << 20

// Handler handles import job HTTP requests.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ImportJobResponse is the API shape of one import job.
type ImportJobResponse struct {
	ID                   uuid.UUID `json:"id"`
	FileName             string    `json:"fileName"`
	Status               string    `json:"status"`
	OpportunitiesCreated int       `json:"opportunitiesCreated"`
	MeetingsCreated      int       `json:"meetingsCreated"`
	RowsSkipped          int       `json:"rowsSkipped"`
	Error                *string   `json:"error,omitempty"`
	CreatedAt            string    `json:"createdAt"`
	UpdatedAt            string    `json:"updatedAt"`
}

// HandleSubmit accepts a CSV upload and queues the import.
// POST /api/v1/imports (multipart: file)
func (h *Handler) HandleSubmit(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "csv file is required", nil)
		return
	}
	if fh.Size > maxImportUploadBytes {
		httpkit.Error(c, http.StatusRequestEntityTooLarge, "csv file too large", nil)
		return
	}

	file, err := fh.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "unable to read csv file", nil)
		return
	}
	defer file.Close()

	job, err := h.service.Submit(c.Request.Context(), SubmitParams{
		OrganizationID: orgID,
		RequestedBy:    identity.UserID(),
		FileName:       fh.Filename,
		CSV:            file,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusAccepted, toImportJobResponse(job))
}

// HandleGet returns one import job.
// GET /api/v1/imports/:jobId
func (h *Handler) HandleGet(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid job ID", nil)
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), jobID, orgID)
	if err != nil {
		if err == ErrImportJobNotFound {
			httpkit.Error(c, http.StatusNotFound, "import job not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, toImportJobResponse(job))
}

// HandleList returns the organization's import jobs, newest first.
// GET /api/v1/imports
func (h *Handler) HandleList(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), orgID, 50)
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]ImportJobResponse, len(jobs))
	for i, job := range jobs {
		result[i] = toImportJobResponse(job)
	}

	httpkit.OK(c, result)
}

func toImportJobResponse(job ImportJob) ImportJobResponse {
	return ImportJobResponse{
		ID:                   job.ID,
		FileName:             job.FileName,
		Status:               job.Status,
		OpportunitiesCreated: job.OpportunitiesCreated,
		MeetingsCreated:      job.MeetingsCreated,
		RowsSkipped:          job.RowsSkipped,
		Error:                job.Error,
		CreatedAt:            job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
