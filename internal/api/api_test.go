package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/field/internal/claim"
	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/health"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/limiter"
	"github.com/23skdu/field/internal/publish"
	"github.com/23skdu/field/internal/pubsub"
	"github.com/23skdu/field/internal/round"
	"github.com/23skdu/field/internal/score"
	"github.com/23skdu/field/internal/storage"
)

type fixture struct {
	srv   *Server
	store *kv.MemoryStore
	blobs *storage.MemoryStore
	hub   *pubsub.Hub
}

func newFixture(t *testing.T, lim *limiter.RateLimiter) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := kv.NewMemoryStore()
	reg := round.NewRegistry(store, nil, zerolog.Nop())
	hub := pubsub.NewHub()
	t.Cleanup(hub.Close)
	blobs := storage.NewMemoryStore()
	hm := health.NewHealthManager("test", zerolog.Nop())
	hm.RegisterChecker(health.NewPingChecker("kv", time.Second, func(context.Context) error { return nil }))

	srv := NewServer(Deps{
		Rounds:    reg,
		Claims:    claim.NewService(store, reg, publish.NewDeltaLog(store, reg), zerolog.Nop()),
		Settler:   claim.NewSettler(store, zerolog.Nop()),
		Scores:    score.NewEngine(store, time.Millisecond, zerolog.Nop()),
		Sequences: store,
		WS:        pubsub.NewWSHandler(hub, zerolog.Nop()),
		Blobs:     blobs,
		Health:    hm,
		Limiter:   lim,
		Logger:    zerolog.Nop(),
	})
	return &fixture{srv: srv, store: store, blobs: blobs, hub: hub}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (f *fixture) createRound(t *testing.T, cfg round.Config) round.Config {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/rounds", "admin", cfg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[round.Config](t, w)
}

func TestRounds_CreateAndGet(t *testing.T) {
	f := newFixture(t, nil)
	cfg := f.createRound(t, round.Config{Size: 4, PartitionSize: 2, Teams: 2})
	assert.NotEmpty(t, cfg.ID)
	assert.Equal(t, round.DefaultPartitionPeriod, cfg.PartitionPeriod)

	_, err := f.store.Incr(context.Background(), kv.SequenceKey(cfg.ID, core.PartitionXY{X: 1, Y: 0}))
	require.NoError(t, err)

	for _, id := range []string{cfg.ID, "current"} {
		w := f.do(t, http.MethodGet, "/v1/rounds/"+id, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[RoundResponse](t, w)
		assert.Equal(t, cfg.ID, resp.Round.ID)
		require.Len(t, resp.Partitions, 4)
		seqs := map[core.PartitionXY]int64{}
		for _, p := range resp.Partitions {
			seqs[p.Partition] = p.SequenceNumber
		}
		assert.Equal(t, int64(1), seqs[core.PartitionXY{X: 1, Y: 0}])
		assert.Equal(t, int64(0), seqs[core.PartitionXY{X: 0, Y: 1}])
	}
}

func TestRounds_Errors(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/v1/rounds/current", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/v1/rounds/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/v1/rounds", "admin", round.Config{Size: 5, PartitionSize: 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode[errorResponse](t, w).Type)

	w = f.do(t, http.MethodPost, "/v1/rounds", "admin", map[string]any{"size": 4, "bogus": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClaim_Flow(t *testing.T) {
	f := newFixture(t, nil)
	cfg := f.createRound(t, round.Config{Size: 4, PartitionSize: 2, Teams: 2})
	path := "/v1/rounds/" + cfg.ID + "/claims"

	w := f.do(t, http.MethodPost, path, "alice", ClaimRequest{Coords: []core.XY{{X: 3, Y: 3}, {X: 0, Y: 0}}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ClaimResponse](t, w)
	team := round.TeamFor("alice", cfg.Teams)
	assert.Equal(t, []core.Delta{
		{XY: core.XY{X: 3, Y: 3}, Team: team},
		{XY: core.XY{X: 0, Y: 0}, Team: team},
	}, resp.Deltas)
	assert.Equal(t, 2, resp.Claimed)
	assert.False(t, resp.Eliminated)

	w = f.do(t, http.MethodPost, path, "bob", ClaimRequest{Coords: []core.XY{{X: 3, Y: 3}}})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[ClaimResponse](t, w)
	assert.Empty(t, resp.Deltas)
	assert.Contains(t, w.Body.String(), `"deltas":[]`)

	w = f.do(t, http.MethodGet, "/v1/rounds/"+cfg.ID+"/score?precise=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[ScoreResponse](t, w)
	assert.True(t, snap.Precise)
	assert.Equal(t, int64(14), snap.Remaining)
	assert.Equal(t, team, snap.Scores[0].Team)
	assert.Equal(t, int64(2), snap.Scores[0].Score)

	w = f.do(t, http.MethodGet, "/v1/rounds/"+cfg.ID+"/score", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[ScoreResponse](t, w).Precise)
}

func TestClaim_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	cfg := f.createRound(t, round.Config{Size: 2, PartitionSize: 2, Teams: 2, MineDensity: 100})
	path := "/v1/rounds/" + cfg.ID + "/claims"

	w := f.do(t, http.MethodPost, path, "", ClaimRequest{Coords: []core.XY{{X: 0, Y: 0}}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing user")

	w = f.do(t, http.MethodPost, path, "alice", ClaimRequest{Coords: []core.XY{{X: 2, Y: 0}}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "out of bounds")

	w = f.do(t, http.MethodPost, path, "alice", ClaimRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "no coords")

	w = f.do(t, http.MethodPost, "/v1/rounds/nope/claims", "alice", ClaimRequest{Coords: []core.XY{{X: 0, Y: 0}}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, path, "alice", ClaimRequest{Coords: []core.XY{{X: 0, Y: 0}}})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ClaimResponse](t, w)
	assert.Equal(t, 1, resp.Mines)
	assert.True(t, resp.Eliminated)

	w = f.do(t, http.MethodPost, path, "alice", ClaimRequest{Coords: []core.XY{{X: 1, Y: 0}}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestClaim_RateLimited(t *testing.T) {
	f := newFixture(t, limiter.NewRateLimiter(limiter.Config{KeyRPS: 1, KeyBurst: 1}))
	cfg := f.createRound(t, round.Config{Size: 2, PartitionSize: 2, Teams: 2})
	path := "/v1/rounds/" + cfg.ID + "/claims"

	body := ClaimRequest{Coords: []core.XY{{X: 0, Y: 0}}}
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path, "carol", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, path, "carol", body).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path, "dave", body).Code)
}

func TestBlobsHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	key := storage.BlobKey{Round: "r1", Partition: core.PartitionXY{X: 1, Y: 0}, Seq: 30, Kind: core.KindReplace}
	require.NoError(t, f.blobs.Upload(context.Background(), key, []byte{1, 2, 3}))

	w := f.do(t, http.MethodGet, "/blobs/"+key.Path(""), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte{1, 2, 3}, w.Body.Bytes())
	assert.Equal(t, storage.ContentType, w.Header().Get("Content-Type"))

	w = f.do(t, http.MethodGet, "/blobs/r1/0-0/1.patch", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, health.StatusHealthy, decode[health.SystemHealth](t, w).Status)

	w = f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "field_")
}

func TestNotifications_Websocket(t *testing.T) {
	f := newFixture(t, nil)
	cfg := f.createRound(t, round.Config{Size: 2, PartitionSize: 2, Teams: 2})

	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/rounds/current/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	n := core.Notification{Kind: core.KindPatch, Round: cfg.ID, SequenceNumber: 1}
	require.NoError(t, f.hub.Publish(context.Background(), n))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	got, err := pubsub.Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(core.NewNotFoundError("round", "x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(core.NewInvalidArgumentError("f", "bad")))
	assert.Equal(t, http.StatusForbidden, statusFor(claim.ErrEliminated))
	assert.Equal(t, http.StatusConflict, statusFor(claim.ErrRoundOver))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
