package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type clientConfigResponse struct {
	Debug                  bool     `json:"debug"`
	DirectorySearchEnabled bool     `json:"directory_search_enabled"`
	DialOutEnabled         bool     `json:"dial_out_enabled"`
	QueryTypes             []string `json:"query_types"`
	VAPIDPublicKey         string   `json:"vapid_public_key,omitempty"`
}

// GetClientConfig tells the frontend which invite features this deployment
// has switched on.
func (h *Handlers) GetClientConfig(c *gin.Context) {
	resp := clientConfigResponse{
		Debug: h.config != nil && h.config.LogLevel == "debug",
	}
	if h.config != nil {
		resp.DirectorySearchEnabled = h.config.DirectorySearchEnabled
		resp.DialOutEnabled = h.config.DialOutEnabled
		resp.QueryTypes = h.config.QueryTypes
		if h.config.VAPIDKeys != nil {
			resp.VAPIDPublicKey = h.config.VAPIDKeys.PublicKey
		}
	}

	c.JSON(http.StatusOK, resp)
}
