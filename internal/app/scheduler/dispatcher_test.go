package scheduler

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/motorlist/internal/middleware"
)

type recordingHandler struct {
	mu     sync.Mutex
	calls  []string
	tokens []string
	status map[string]int
	panics map[string]bool
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.calls = append(h.calls, r.URL.Path)
	h.tokens = append(h.tokens, r.Header.Get(middleware.InternalTokenHeader))
	shouldPanic := h.panics[r.URL.Path]
	status, ok := h.status[r.URL.Path]
	h.mu.Unlock()

	if shouldPanic {
		panic("synthetic request blew up")
	}
	if !ok {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (h *recordingHandler) paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func newTestDispatcher(t *testing.T, handler http.Handler, opts ...Option) *Dispatcher {
	t.Helper()
	opts = append([]Option{WithCron(cron.New(cron.WithLogger(cron.DiscardLogger)))}, opts...)
	d, err := NewDispatcher(handler, "internal-secret", opts...)
	require.NoError(t, err)
	return d
}

func TestSelectJobs(t *testing.T) {
	defaults := DefaultSchedules()

	cases := []struct {
		name   string
		cronID string
		want   []JobKind
	}{
		{"five minute tick", "*/5 * * * *", []JobKind{CreateBatch}},
		{"ten minute tick", "*/10 * * * *", []JobKind{CheckBatch}},
		{"manual trigger", "", []JobKind{CreateBatch, CheckBatch}},
		{"whitespace trigger", "  ", []JobKind{CreateBatch, CheckBatch}},
		{"unknown", "0 * * * *", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SelectJobs(tc.cronID, defaults))
		})
	}

	shared := Schedules{CreateBatch: "@hourly", CheckBatch: "@hourly"}
	require.Equal(t, []JobKind{CreateBatch, CheckBatch}, SelectJobs("@hourly", shared))
}

func TestJobKindRoutes(t *testing.T) {
	require.Equal(t, "create_batch", CreateBatch.Label())
	require.Equal(t, "/internal/batch/create", CreateBatch.Path())
	require.Equal(t, "check_batch", CheckBatch.String())
	require.Equal(t, "/internal/batch/check", CheckBatch.Path())
	require.Equal(t, "unknown", JobKind(0).Label())
}

func TestNewDispatcherValidates(t *testing.T) {
	_, err := NewDispatcher(nil, "token")
	require.ErrorContains(t, err, "handler is required")

	_, err = NewDispatcher(&recordingHandler{}, " ")
	require.ErrorContains(t, err, "internal token is required")
}

func TestDispatchFiveMinuteTickRunsOnlyCreateBatch(t *testing.T) {
	handler := &recordingHandler{}
	d := newTestDispatcher(t, handler)

	outcomes := d.Dispatch(context.Background(), "*/5 * * * *")

	require.Len(t, outcomes, 1)
	require.Equal(t, CreateBatch, outcomes[0].Job)
	require.True(t, outcomes[0].Succeeded())
	require.Equal(t, []string{"/internal/batch/create"}, handler.paths())
	require.Equal(t, []string{"internal-secret"}, handler.tokens)
}

func TestDispatchTenMinuteTickRunsOnlyCheckBatch(t *testing.T) {
	handler := &recordingHandler{panics: map[string]bool{"/internal/batch/create": true}}
	d := newTestDispatcher(t, handler)

	outcomes := d.Dispatch(context.Background(), "*/10 * * * *")

	require.Len(t, outcomes, 1)
	require.Equal(t, CheckBatch, outcomes[0].Job)
	require.True(t, outcomes[0].Succeeded())
	require.Equal(t, []string{"/internal/batch/check"}, handler.paths())
}

func TestDispatchSwallowsPanickingJob(t *testing.T) {
	handler := &recordingHandler{panics: map[string]bool{"/internal/batch/create": true}}
	d := newTestDispatcher(t, handler)

	var outcomes []JobOutcome
	require.NotPanics(t, func() {
		outcomes = d.Dispatch(context.Background(), "")
	})

	require.Len(t, outcomes, 2)
	byJob := map[JobKind]JobOutcome{}
	for _, o := range outcomes {
		byJob[o.Job] = o
	}

	require.False(t, byJob[CreateBatch].Succeeded())
	require.ErrorContains(t, byJob[CreateBatch].Err, "synthetic request blew up")
	require.True(t, byJob[CheckBatch].Succeeded())
	require.ElementsMatch(t, []string{"/internal/batch/create", "/internal/batch/check"}, handler.paths())
}

func TestDispatchReportsNonSuccessStatus(t *testing.T) {
	handler := &recordingHandler{status: map[string]int{"/internal/batch/check": http.StatusInternalServerError}}
	d := newTestDispatcher(t, handler)

	outcomes := d.Dispatch(context.Background(), "*/10 * * * *")
	require.Len(t, outcomes, 1)
	require.False(t, outcomes[0].Succeeded())
	require.Equal(t, http.StatusInternalServerError, outcomes[0].Status)
	require.ErrorContains(t, outcomes[0].Err, "returned 500")
}

func TestDispatchUnknownCronRunsNothing(t *testing.T) {
	handler := &recordingHandler{}
	d := newTestDispatcher(t, handler)

	require.Empty(t, d.Dispatch(context.Background(), "0 0 * * *"))
	require.Empty(t, handler.paths())
}

func TestTickCompletesDespiteFailures(t *testing.T) {
	handler := &recordingHandler{
		panics: map[string]bool{"/internal/batch/create": true},
		status: map[string]int{"/internal/batch/check": http.StatusBadGateway},
	}
	d := newTestDispatcher(t, handler, WithJobTimeout(time.Second))

	require.NotPanics(t, func() { d.Tick("") })
	require.Len(t, handler.paths(), 2)
}

func TestStartRegistersDistinctSchedules(t *testing.T) {
	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	d := newTestDispatcher(t, &recordingHandler{},
		WithCron(c),
		WithSchedules(Schedules{CreateBatch: "@hourly", CheckBatch: "@hourly"}),
	)

	require.NoError(t, d.Start())
	t.Cleanup(func() { <-d.Stop().Done() })
	require.Len(t, c.Entries(), 1)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	d := newTestDispatcher(t, &recordingHandler{}, WithSchedules(Schedules{CreateBatch: "nonsense"}))
	require.Error(t, d.Start())
}

func TestDispatchPassesInternalTokenMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	internal := r.Group("/internal", middleware.InternalToken("internal-secret"))
	internal.POST("/batch/create", func(c *gin.Context) { c.Status(http.StatusOK) })
	internal.POST("/batch/check", func(c *gin.Context) { c.Status(http.StatusOK) })

	outcomes := newTestDispatcher(t, r).Dispatch(context.Background(), "")
	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		require.True(t, outcome.Succeeded(), "%s: status %d", outcome.Job, outcome.Status)
	}

	d, err := NewDispatcher(r, "stale-secret", WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))))
	require.NoError(t, err)
	for _, outcome := range d.Dispatch(context.Background(), "") {
		require.Equal(t, http.StatusUnauthorized, outcome.Status)
		require.False(t, outcome.Succeeded())
	}
}
