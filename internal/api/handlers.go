package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jbandu/bag-sub001/internal/gateway"
)

// GatewayHandler exposes the gateway engine over HTTP
type GatewayHandler struct {
	gw *gateway.Service
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(gw *gateway.Service) *GatewayHandler {
	return &GatewayHandler{gw: gw}
}

// CallRequest is the wire form of a gateway call
type CallRequest struct {
	Target   string                 `json:"target" binding:"required"`
	Method   string                 `json:"method" binding:"required"`
	Params   map[string]interface{} `json:"params"`
	UseCache bool                   `json:"use_cache"`
	CacheTTL string                 `json:"cache_ttl"`
	Timeout  string                 `json:"timeout"`
}

// Call dispatches one operation through the gateway
func (h *GatewayHandler) Call(c *gin.Context) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "Invalid request body: "+err.Error())
		return
	}

	gwReq := &gateway.Request{
		Target:   req.Target,
		Method:   req.Method,
		Params:   req.Params,
		UseCache: req.UseCache,
	}
	if req.CacheTTL != "" {
		ttl, err := time.ParseDuration(req.CacheTTL)
		if err != nil {
			BadRequestResponse(c, "Invalid cache_ttl: "+err.Error())
			return
		}
		gwReq.CacheTTL = ttl
	}
	if req.Timeout != "" {
		timeout, err := time.ParseDuration(req.Timeout)
		if err != nil {
			BadRequestResponse(c, "Invalid timeout: "+err.Error())
			return
		}
		gwReq.Timeout = timeout
	}

	// The gateway reports expected failures inside the Response envelope;
	// the HTTP layer always answers 200 for a completed dispatch.
	resp := h.gw.Call(c.Request.Context(), gwReq)
	SuccessResponse(c, resp)
}

// ListTargets lists registered targets and their methods
func (h *GatewayHandler) ListTargets(c *gin.Context) {
	SuccessResponse(c, gin.H{
		"targets": h.gw.Targets(),
	})
}

// TargetHealth returns the resilience control stats for one target
func (h *GatewayHandler) TargetHealth(c *gin.Context) {
	th, err := h.gw.TargetHealth(c.Param("name"))
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, th)
}

// ResetBreaker forces a target's circuit breaker back to closed
func (h *GatewayHandler) ResetBreaker(c *gin.Context) {
	name := c.Param("name")
	if err := h.gw.ResetBreaker(name); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{
		"target": name,
		"state":  "CLOSED",
	})
}

// InvalidateCache removes cached responses for a target. An optional
// ?pattern= query narrows the invalidation to matching keys.
func (h *GatewayHandler) InvalidateCache(c *gin.Context) {
	name := c.Param("target")
	removed, err := h.gw.InvalidateCache(name, c.Query("pattern"))
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{
		"target":  name,
		"removed": removed,
	})
}

// Summary returns the gateway's aggregate call statistics
func (h *GatewayHandler) Summary(c *gin.Context) {
	SuccessResponse(c, h.gw.Health())
}
