package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dkeye/rtcserver/internal/app/orch"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Orch *orch.Orchestrator
}

type CreateSessionRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreatePeerConnectionRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type DescriptionRequest struct {
	Type string `json:"type" binding:"required"`
	SDP  string `json:"sdp"`
}

type TrackRequest struct {
	TrackID string `json:"track_id" binding:"required"`
	Label   string `json:"label"`
}

var statusByKind = map[domain.ErrorKind]int{
	domain.KindNotFound:          http.StatusNotFound,
	domain.KindAlreadyExists:     http.StatusConflict,
	domain.KindInvalidState:      http.StatusPreconditionFailed,
	domain.KindNegotiationFailed: http.StatusBadRequest,
	domain.KindEngine:            http.StatusBadGateway,
	domain.KindBackpressure:      http.StatusTooManyRequests,
}

func writeError(c *gin.Context, err error) {
	kind := domain.Kind(err)
	code, ok := statusByKind[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	if code >= 500 {
		log.Warn().Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).Err(err).Msg("request failed")
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error(), "kind": kind})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// bindOptional accepts an empty body as the zero request.
func bindOptional(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return false
	}
	return true
}

func sessionID(c *gin.Context) domain.SessionID { return domain.SessionID(c.Param("sid")) }

func peerID(c *gin.Context) domain.PeerConnectionID { return domain.PeerConnectionID(c.Param("pcid")) }

func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if !bindOptional(c, &req) {
		return
	}
	info, err := h.Orch.CreateSession(c.Request.Context(), domain.SessionID(req.ID), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.Orch.ListSessions(c.Request.Context())})
}

func (h *Handlers) GetSession(c *gin.Context) {
	info, err := h.Orch.GetSession(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handlers) StartSession(c *gin.Context) {
	info, err := h.Orch.StartSession(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handlers) StopSession(c *gin.Context) {
	info, err := h.Orch.StopSession(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.Orch.DeleteSession(c.Request.Context(), sessionID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) GetStats(c *gin.Context) {
	st, err := h.Orch.GetStats(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handlers) CreatePeerConnection(c *gin.Context) {
	var req CreatePeerConnectionRequest
	if !bindOptional(c, &req) {
		return
	}
	info, err := h.Orch.CreatePeerConnection(c.Request.Context(), sessionID(c), domain.PeerConnectionID(req.ID), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *Handlers) CreateOffer(c *gin.Context) {
	desc, err := h.Orch.CreateOffer(c.Request.Context(), sessionID(c), peerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

func (h *Handlers) CreateAnswer(c *gin.Context) {
	desc, err := h.Orch.CreateAnswer(c.Request.Context(), sessionID(c), peerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

func bindDescription(c *gin.Context) (domain.SessionDescription, bool) {
	var req DescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return domain.SessionDescription{}, false
	}
	t, err := domain.ParseSDPType(req.Type)
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrNegotiationFailed, err))
		return domain.SessionDescription{}, false
	}
	return domain.SessionDescription{Type: t, SDP: req.SDP}, true
}

func (h *Handlers) SetLocalDescription(c *gin.Context) {
	desc, ok := bindDescription(c)
	if !ok {
		return
	}
	if err := h.Orch.SetLocalDescription(c.Request.Context(), sessionID(c), peerID(c), desc); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) SetRemoteDescription(c *gin.Context) {
	desc, ok := bindDescription(c)
	if !ok {
		return
	}
	if err := h.Orch.SetRemoteDescription(c.Request.Context(), sessionID(c), peerID(c), desc); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) AddTrack(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Orch.AddTrack(c.Request.Context(), sessionID(c), peerID(c), req.TrackID, req.Label); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) AddTransceiver(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Orch.AddTransceiver(c.Request.Context(), sessionID(c), peerID(c), req.TrackID, req.Label); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) GetTransceivers(c *gin.Context) {
	ts, err := h.Orch.GetTransceivers(c.Request.Context(), sessionID(c), peerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transceivers": ts})
}
