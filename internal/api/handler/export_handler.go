package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/dbferry/dbferry/internal/api/dto"
	"github.com/dbferry/dbferry/internal/core/domain"
	"github.com/dbferry/dbferry/internal/core/service"
)

type ExportHandler struct {
	exportService *service.ExportService
}

func NewExportHandler(exportService *service.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// CreateExport handles POST /exports
//
// The response shape depends on the destination: response-destination
// exports answer with the encoded document itself; file and webhook
// destinations answer with the job record.
func (h *ExportHandler) CreateExport(c *gin.Context) {
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad Request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	result, err := h.exportService.ExportData(c.Request.Context(), req.TenantID,
		service.ExportQuery{
			Table:   req.Table,
			Filters: req.Filters,
			RawSQL:  req.RawSQL,
			RawArgs: req.RawArgs,
		},
		service.ExportOptions{
			Format:      req.Format,
			Fields:      req.Fields,
			SortKey:     req.SortKey,
			SortDesc:    req.SortDesc,
			Limit:       req.Limit,
			Offset:      req.Offset,
			Destination: domain.ExportDestination(req.Destination),
			WebhookURL:  req.WebhookURL,
			Compress:    req.Compress,
		})
	if err != nil {
		respondError(c, err)
		return
	}

	if result.Job.Destination == domain.ExportDestinationResponse {
		c.Header("X-Export-Id", result.Job.ID)
		c.Header("X-Export-Records", strconv.Itoa(result.Job.RecordCount))
		c.Data(http.StatusOK, exportContentType(result.Job.Format), result.Data)
		return
	}
	c.JSON(http.StatusOK, toExportJobResponse(result.Job))
}

// GetExport handles GET /exports/:id
func (h *ExportHandler) GetExport(c *gin.Context) {
	job, err := h.exportService.GetExportStatus(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toExportJobResponse(job))
}

// CancelExport handles POST /exports/:id/cancel
func (h *ExportHandler) CancelExport(c *gin.Context) {
	if err := h.exportService.CancelExport(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	job, err := h.exportService.GetExportStatus(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toExportJobResponse(job))
}

// StreamExport handles GET /exports/stream
//
// Fragments are flushed to the client as they are encoded, so memory
// stays bounded no matter how large the result set is. The concatenated
// body is one valid document of the requested format. The status line
// is committed before the first fragment, so a failure mid-stream
// cannot change it; instead the body is terminated with an error
// fragment the client can detect, and a truncated export is never
// mistaken for a complete one.
func (h *ExportHandler) StreamExport(c *gin.Context) {
	req := streamRequestFromQuery(c)

	stream, err := h.exportService.StreamExport(c.Request.Context(), req.TenantID,
		service.ExportQuery{Table: req.Table, Filters: req.Filters},
		service.ExportOptions{
			Format:   req.Format,
			Fields:   req.Fields,
			SortKey:  req.SortKey,
			SortDesc: req.SortDesc,
			Limit:    req.Limit,
			Offset:   req.Offset,
		})
	if err != nil {
		respondError(c, err)
		return
	}
	defer stream.Close()

	c.Header("X-Export-Id", stream.Job().ID)
	c.Header("Content-Type", exportContentType(stream.Job().Format))
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	started := false
	for {
		fragment, err := stream.Next(c.Request.Context())
		if err != nil {
			c.Writer.Write(errorFragment(stream.Job().Format, started, err))
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		if fragment == nil {
			return
		}
		if _, err := c.Writer.Write(fragment); err != nil {
			return
		}
		started = true
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// errorFragment builds the terminal fragment for a stream that failed
// after the response was committed. Where the format allows it the
// fragment closes the document's framing, so the body stays parseable
// with the error in-band.
func errorFragment(formatName string, started bool, err error) []byte {
	msg, _ := json.Marshal(err.Error())
	switch formatName {
	case "json":
		if !started {
			return []byte(`{"data":[],"error":` + string(msg) + `}`)
		}
		return []byte(`],"error":` + string(msg) + `}`)
	case "ndjson":
		return []byte(`{"error":` + string(msg) + "}\n")
	case "csv":
		return []byte("#error: " + err.Error() + "\n")
	case "sql":
		return []byte("-- error: " + err.Error() + "\n")
	default:
		return []byte("error: " + err.Error() + "\n")
	}
}

// streamRequestFromQuery maps the stream endpoint's query parameters
// onto the export request shape. Filters use filter.<column>=<value>
// pairs; every value arrives as a string and compares as one.
func streamRequestFromQuery(c *gin.Context) dto.CreateExportRequest {
	req := dto.CreateExportRequest{
		TenantID: c.Query("tenant_id"),
		Table:    c.Query("table"),
		Format:   c.Query("format"),
		SortKey:  c.Query("sort_key"),
		SortDesc: c.Query("sort_desc") == "true",
	}
	req.Limit, _ = strconv.Atoi(c.Query("limit"))
	req.Offset, _ = strconv.Atoi(c.Query("offset"))
	if fields := c.QueryArray("fields"); len(fields) > 0 {
		req.Fields = fields
	}

	for key, values := range c.Request.URL.Query() {
		if len(key) > len("filter.") && key[:len("filter.")] == "filter." && len(values) > 0 {
			if req.Filters == nil {
				req.Filters = map[string]any{}
			}
			req.Filters[key[len("filter."):]] = values[0]
		}
	}
	return req
}

func exportContentType(formatName string) string {
	switch formatName {
	case "json":
		return "application/json"
	case "ndjson":
		return "application/x-ndjson"
	case "csv":
		return "text/csv"
	case "xml":
		return "application/xml"
	default:
		return "text/plain"
	}
}

func toExportJobResponse(job *domain.ExportJob) dto.ExportJobResponse {
	return dto.ExportJobResponse{
		ID:          job.ID,
		TenantID:    job.TenantID,
		Table:       job.Table,
		Format:      job.Format,
		Destination: string(job.Destination),
		Status:      string(job.Status),
		Error:       job.Error,
		RecordCount: job.RecordCount,
		FilePath:    job.FilePath,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
}
