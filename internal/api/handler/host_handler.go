package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/martijn/vmorch/internal/api/dto"
	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/sshconfig"
)

// HostDirectory lists and probes configured ssh hosts.
type HostDirectory interface {
	List() ([]domain.SSHHost, error)
	Probe(ctx context.Context, alias string, timeout time.Duration) (*sshconfig.ProbeResult, error)
}

type HostHandler struct {
	hosts HostDirectory
}

func NewHostHandler(hosts HostDirectory) *HostHandler {
	return &HostHandler{hosts: hosts}
}

// ListHosts handles GET /hosts
func (h *HostHandler) ListHosts(c *gin.Context) {
	hosts, err := h.hosts.List()
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	response := dto.HostListResponse{Items: make([]dto.HostResponse, len(hosts))}
	for i, host := range hosts {
		response.Items[i] = dto.HostResponse{
			Alias:                 host.Alias,
			Host:                  host.Host,
			User:                  host.User,
			Port:                  host.Port,
			IdentityFile:          host.IdentityFile,
			StrictHostKeyChecking: host.StrictHostKeyChecking,
			ConnectTimeout:        host.ConnectTimeout,
		}
	}

	c.JSON(http.StatusOK, response)
}

// TestHost handles POST /hosts/:alias/test. The optional timeout query
// parameter is in seconds.
func (h *HostHandler) TestHost(c *gin.Context) {
	alias := c.Param("alias")

	var timeout time.Duration
	if v := c.Query("timeout"); v != "" {
		d, err := time.ParseDuration(v + "s")
		if err != nil {
			respondError(c, http.StatusBadRequest, "timeout must be a number of seconds")
			return
		}
		timeout = d
	}

	res, err := h.hosts.Probe(c.Request.Context(), alias, timeout)
	if err != nil {
		if errors.Is(err, sshconfig.ErrHostNotFound) {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, dto.HostTestResponse{
		Alias:     res.Alias,
		Host:      res.Host,
		Success:   res.Success,
		Output:    res.Output,
		Error:     res.Error,
		LatencyMS: res.Latency.Milliseconds(),
		CheckedAt: res.CheckedAt,
	})
}
