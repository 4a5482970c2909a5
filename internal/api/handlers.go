package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/23skdu/field/internal/core"
	fielderrors "github.com/23skdu/field/internal/errors"
	"github.com/23skdu/field/internal/health"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/round"
	"github.com/23skdu/field/internal/score"
	"github.com/23skdu/field/internal/security"
)

const (
	userKey      = "field.user"
	maxBodyBytes = 1 << 20
)

// ClaimRequest is the body of a claim.
type ClaimRequest struct {
	Coords []core.XY `json:"coords"`
}

// ClaimResponse lists the cells won, in request order.
type ClaimResponse struct {
	Deltas     []core.Delta `json:"deltas"`
	Claimed    int          `json:"claimed"`
	Mines      int          `json:"mines"`
	Eliminated bool         `json:"eliminated"`
}

// PartitionState is the latest published sequence number of a partition.
type PartitionState struct {
	Partition      core.PartitionXY `json:"partitionXY"`
	SequenceNumber int64            `json:"sequenceNumber"`
}

// RoundResponse is a round config plus where publication stands.
type RoundResponse struct {
	Round      round.Config     `json:"round"`
	Partitions []PartitionState `json:"partitions"`
}

// ScoreResponse is a score snapshot tagged with how it was computed.
type ScoreResponse struct {
	score.Snapshot
	Precise bool `json:"precise"`
}

func decodeBody(c *gin.Context, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fielderrors.WrapValidationError(err, "api.decode", "malformed request body")
	}
	return nil
}

func requireUser(c *gin.Context) {
	user := c.GetHeader(UserHeader)
	if err := security.ValidateUserID(user); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Type: string(fielderrors.ErrorTypeValidation)})
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func (s *Server) resolveRound(c *gin.Context) (round.Config, bool) {
	id := c.Param("round")
	var (
		cfg round.Config
		err error
	)
	if id == "current" {
		cfg, err = s.d.Rounds.Current(c.Request.Context())
	} else {
		cfg, err = s.d.Rounds.Get(c.Request.Context(), id)
	}
	if err != nil {
		s.fail(c, err)
		return round.Config{}, false
	}
	return cfg, true
}

func (s *Server) createRound(c *gin.Context) {
	var cfg round.Config
	if err := decodeBody(c, &cfg); err != nil {
		s.fail(c, err)
		return
	}
	created, err := s.d.Rounds.Create(c.Request.Context(), cfg)
	s.audit(c, "round.create", created.ID, err)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) getRound(c *gin.Context) {
	cfg, ok := s.resolveRound(c)
	if !ok {
		return
	}
	resp := RoundResponse{Round: cfg}
	for _, pxy := range cfg.Layout().Partitions() {
		seq, err := s.d.Sequences.Counter(c.Request.Context(), kv.SequenceKey(cfg.ID, pxy))
		if err != nil {
			s.fail(c, fielderrors.WrapStorageError(err, "api.round", "read sequence"))
			return
		}
		resp.Partitions = append(resp.Partitions, PartitionState{Partition: pxy, SequenceNumber: seq})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) claim(c *gin.Context) {
	var req ClaimRequest
	if err := decodeBody(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	user := c.GetString(userKey)
	roundID := c.Param("round")

	deltas, err := s.d.Claims.Claim(ctx, user, roundID, req.Coords)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := ClaimResponse{Deltas: deltas, Claimed: len(deltas)}
	if len(deltas) > 0 {
		cfg, err := s.d.Rounds.Get(ctx, roundID)
		if err != nil {
			s.fail(c, err)
			return
		}
		out, err := s.d.Settler.Settle(ctx, user, cfg, deltas)
		if err != nil {
			s.fail(c, err)
			return
		}
		resp.Mines, resp.Eliminated = out.Mines, out.Eliminated
		if out.Eliminated {
			s.audit(c, "player.eliminate", roundID, nil)
		}
	}
	if resp.Deltas == nil {
		resp.Deltas = []core.Delta{}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getScore(c *gin.Context) {
	cfg, ok := s.resolveRound(c)
	if !ok {
		return
	}
	precise := c.Query("precise") == "1" || c.Query("precise") == "true"
	var (
		snap score.Snapshot
		err  error
	)
	if precise {
		snap, err = s.d.Scores.Precise(c.Request.Context(), cfg)
	} else {
		snap, err = s.d.Scores.Fast(c.Request.Context(), cfg)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ScoreResponse{Snapshot: snap, Precise: precise})
}

func (s *Server) notifications(c *gin.Context) {
	if s.d.WS == nil {
		c.AbortWithStatus(http.StatusNotImplemented)
		return
	}
	cfg, ok := s.resolveRound(c)
	if !ok {
		return
	}
	s.d.WS.Serve(c.Writer, c.Request, cfg.ID)
}

func (s *Server) healthz(c *gin.Context) {
	if s.d.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy, "timestamp": time.Now()})
		return
	}
	h := s.d.Health.CheckHealth(c.Request.Context())
	status := http.StatusOK
	if h.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func (s *Server) audit(c *gin.Context, op, resource string, err error) {
	if s.d.Audit == nil {
		return
	}
	entry := security.AuditEntry{
		UserID:    c.GetHeader(UserHeader),
		Operation: op,
		Resource:  resource,
		IPAddress: c.ClientIP(),
		Success:   err == nil,
	}
	if err != nil {
		entry.Reason = err.Error()
	}
	s.d.Audit.LogAuditEntry(entry)
}
