package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/martijn/vmorch/internal/api/dto"
	"github.com/martijn/vmorch/internal/presets"
)

type CommandHandler struct {
	presets *presets.Catalog
}

func NewCommandHandler(catalog *presets.Catalog) *CommandHandler {
	if catalog == nil {
		catalog = &presets.Catalog{Commands: map[string]presets.Preset{}}
	}
	return &CommandHandler{presets: catalog}
}

// ListCommands handles GET /commands
func (h *CommandHandler) ListCommands(c *gin.Context) {
	entries := h.presets.List()

	response := dto.CommandListResponse{Items: make([]dto.CommandResponse, len(entries))}
	for i, e := range entries {
		response.Items[i] = dto.CommandResponse{
			Key:         e.Key,
			Type:        e.Type,
			Cmd:         e.Cmd,
			HostAlias:   e.HostAlias,
			WorkingDir:  e.WorkingDir,
			Description: e.Description,
		}
	}

	c.JSON(http.StatusOK, response)
}
