package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/martijn/vmorch/internal/api/dto"
	"github.com/martijn/vmorch/internal/api/util"
	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/core/repository"
	"github.com/martijn/vmorch/internal/core/service"
	"github.com/martijn/vmorch/internal/execution"
	"github.com/martijn/vmorch/internal/presets"
)

// Executor is the write side of job handling.
type Executor interface {
	NewJobID() string
	Execute(ctx context.Context, req execution.Request) (string, error)
	Cancel(ctx context.Context, jobID string) error
	IsActive(jobID string) bool
	ActiveDetails() []execution.ActiveInfo
}

type JobHandler struct {
	executor Executor
	jobs     *service.JobService
	presets  *presets.Catalog
	logLimit int
}

func NewJobHandler(executor Executor, jobs *service.JobService, catalog *presets.Catalog, logLimit int) *JobHandler {
	if catalog == nil {
		catalog = &presets.Catalog{Commands: map[string]presets.Preset{}}
	}
	return &JobHandler{
		executor: executor,
		jobs:     jobs,
		presets:  catalog,
		logLimit: repository.ClampLogLimit(logLimit),
	}
}

// Execute handles POST /jobs
func (h *JobHandler) Execute(c *gin.Context) {
	var body dto.ExecuteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req, err := buildRequest(body, h.presets)
	if err != nil {
		respondExecuteError(c, "", err)
		return
	}

	id, err := h.executor.Execute(c.Request.Context(), req)
	if err != nil {
		respondExecuteError(c, id, err)
		return
	}

	status := domain.JobStatusRunning
	if job, err := h.jobs.GetJob(c.Request.Context(), id); err == nil {
		status = job.Status
	}

	c.JSON(http.StatusAccepted, dto.ExecuteResponse{
		JobID:  id,
		Status: string(status),
		Link:   "/jobs/" + id,
	})
}

// ListJobs handles GET /jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	// Parse pagination parameters
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(util.DefaultPerPage)))

	listFilter, err := util.ParseListFilter(c.Query("query"), c.Query("order"), page, perPage,
		repository.JobQueryFields, repository.JobOrderFields)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	filter := repository.JobFilter{ListFilter: listFilter}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	count, err := h.jobs.CountJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	response := dto.JobListResponse{
		Items: make([]dto.JobResponse, len(jobs)),
		Pagination: dto.PaginationInfo{
			Total:      count,
			Page:       listFilter.Page,
			PerPage:    listFilter.PerPage,
			TotalPages: listFilter.TotalPages(count),
		},
	}

	for i, job := range jobs {
		response.Items[i] = h.toJobResponse(job)
	}

	c.JSON(http.StatusOK, response)
}

// ListActive handles GET /jobs/active
func (h *JobHandler) ListActive(c *gin.Context) {
	c.JSON(http.StatusOK, toActiveJobsResponse(h.executor.ActiveDetails()))
}

// GetJob handles GET /jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		respondLookupError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, h.toJobResponse(job))
}

// GetLogs handles GET /jobs/:id/logs
func (h *JobHandler) GetLogs(c *gin.Context) {
	id := c.Param("id")

	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		respondError(c, http.StatusBadRequest, "after must be a non-negative integer")
		return
	}

	limit := h.logLimit
	if v := c.Query("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			respondError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	entries, err := h.jobs.GetLogs(c.Request.Context(), id, after, limit)
	if err != nil {
		respondLookupError(c, id, err)
		return
	}

	response := dto.LogListResponse{
		JobID:     id,
		Items:     make([]dto.LogEntryResponse, len(entries)),
		NextAfter: after,
	}
	for i, e := range entries {
		response.Items[i] = dto.LogEntryResponse{
			Seq:       e.Seq,
			Timestamp: e.Timestamp,
			Stream:    string(e.Stream),
			Data:      e.Data,
		}
		response.NextAfter = e.Seq
	}

	c.JSON(http.StatusOK, response)
}

// Cancel handles POST /jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	id := c.Param("id")

	if err := h.executor.Cancel(c.Request.Context(), id); err != nil {
		if errors.Is(err, execution.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, fmt.Sprintf("Job %s: %s", id, err.Error()))
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobId":  id,
		"status": string(domain.JobStatusCanceled),
	})
}

// ListTargetJobs handles GET /targets/:ref/jobs
func (h *JobHandler) ListTargetJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	jobs, err := h.jobs.ListJobsForTarget(c.Request.Context(), c.Param("ref"), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]dto.JobResponse, len(jobs))
	for i, job := range jobs {
		items[i] = h.toJobResponse(job)
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *JobHandler) toJobResponse(job *domain.Job) dto.JobResponse {
	return dto.JobResponse{
		ID:         job.ID,
		Command:    job.Command,
		Strategy:   job.Strategy,
		TargetRef:  job.TargetRef,
		Status:     string(job.Status),
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		ExitCode:   job.ExitCode,
		Active:     h.executor.IsActive(job.ID),
	}
}

func toActiveJobsResponse(active []execution.ActiveInfo) dto.ActiveJobsResponse {
	resp := dto.ActiveJobsResponse{Items: make([]dto.ActiveJobResponse, len(active))}
	for i, a := range active {
		resp.Items[i] = dto.ActiveJobResponse{
			JobID:     a.ID,
			Strategy:  string(a.Strategy),
			Command:   a.Command,
			StartedAt: a.StartedAt,
		}
	}
	return resp
}

// buildRequest turns an execute body into an execution request, expanding a
// preset when one is named.
func buildRequest(body dto.ExecuteRequest, catalog *presets.Catalog) (execution.Request, error) {
	if body.Preset != "" {
		return catalog.Request(body.Preset, body.TargetRef)
	}

	req := execution.Request{
		Command:    body.Command,
		Kind:       execution.Kind(body.StrategyType),
		WorkingDir: body.WorkingDir,
		HostAlias:  body.HostAlias,
		TargetRef:  body.TargetRef,
	}
	if body.Host != nil {
		req.Target = &execution.Target{Host: body.Host.Host, User: body.Host.User, Port: body.Host.Port}
	}
	return req, nil
}
