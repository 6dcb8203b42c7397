package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/dbferry/dbferry/internal/api/dto"
	"github.com/dbferry/dbferry/internal/core/domain"
	"github.com/dbferry/dbferry/internal/core/service"
	"github.com/dbferry/dbferry/internal/storage"
)

type BackupHandler struct {
	backupService *service.BackupService
}

func NewBackupHandler(backupService *service.BackupService) *BackupHandler {
	return &BackupHandler{backupService: backupService}
}

// CreateBackup handles POST /backups
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	var req dto.CreateBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad Request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	job, err := h.backupService.CreateBackup(service.CreateBackupOptions{
		TenantID:      req.TenantID,
		Tables:        req.Tables,
		Format:        req.Format,
		Compress:      req.Compress,
		Encrypt:       req.Encrypt,
		Backend:       req.Backend,
		Since:         req.Since,
		Until:         req.Until,
		IncludeSchema: req.IncludeSchema,
		CreatedBy:     req.CreatedBy,
		Description:   req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, toBackupJobResponse(job))
}

// GetBackup handles GET /backups/:id
func (h *BackupHandler) GetBackup(c *gin.Context) {
	job, err := h.backupService.GetBackupStatus(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBackupJobResponse(job))
}

// ListBackups handles GET /backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	backendName := c.DefaultQuery("backend", storage.LocalName)

	objects, err := h.backupService.ListBackups(c.Request.Context(), backendName)
	if err != nil {
		respondError(c, err)
		return
	}

	response := dto.BackupListResponse{
		Items:   make([]dto.StoredBackupResponse, len(objects)),
		Backend: backendName,
	}
	for i, obj := range objects {
		response.Items[i] = dto.StoredBackupResponse{
			ID:      obj.ID,
			Size:    obj.Size,
			Backend: obj.Backend,
		}
	}
	c.JSON(http.StatusOK, response)
}

// DeleteBackup handles DELETE /backups/:id
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	backendName := c.DefaultQuery("backend", storage.LocalName)

	if err := h.backupService.DeleteBackup(c.Request.Context(), c.Param("id"), backendName); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelBackup handles POST /backups/:id/cancel
func (h *BackupHandler) CancelBackup(c *gin.Context) {
	if err := h.backupService.CancelBackup(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	job, err := h.backupService.GetBackupStatus(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBackupJobResponse(job))
}

// Restore handles POST /backups/:id/restore
// An empty body restores every table from the default backend.
func (h *BackupHandler) Restore(c *gin.Context) {
	var req dto.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad Request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	backupID := c.Param("id")
	counts, err := h.backupService.RestoreBackup(c.Request.Context(), backupID, service.RestoreOptions{
		Backend: req.Backend,
		Tables:  req.Tables,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RestoreResponse{
		BackupID: backupID,
		Tables:   counts,
	})
}

func toBackupJobResponse(job *domain.BackupJob) dto.BackupJobResponse {
	return dto.BackupJobResponse{
		ID:          job.ID,
		TenantID:    job.TenantID,
		Tables:      job.Tables,
		Format:      job.Format,
		Backend:     job.Backend,
		Status:      string(job.Status),
		Error:       job.Error,
		Location:    job.Location,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}
