package crontask

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/pilling-app/pilling-core/internal/middleware"
	"github.com/pilling-app/pilling-core/internal/pkg/cron"
	"github.com/pilling-app/pilling-core/internal/pkg/jwt"
	redisc "github.com/pilling-app/pilling-core/internal/pkg/redis"
	"github.com/pilling-app/pilling-core/internal/pkg/taskqueue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, sched *cron.Scheduler, tasks *taskqueue.Service) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	NewHandler(sched, tasks).RegisterRoutes(api, middleware.Auth(), middleware.StaffOnly())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTaskService(t *testing.T) *taskqueue.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	return taskqueue.NewService(redisc.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})))
}

func doStaff(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	token, err := jwt.Sign("admin-1", true, time.Minute)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// A triggered job must keep running after the trigger response is written,
// even though net/http cancels the request context at that point.
func TestTriggeredJobOutlivesRequest(t *testing.T) {
	sched := cron.New()
	jobCtxErr := make(chan error, 1)
	sched.Register(cron.Job{
		Name:     "slow_refresh",
		Interval: time.Hour,
		Fn: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				jobCtxErr <- ctx.Err()
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
				jobCtxErr <- nil
				return nil
			}
		},
	})
	srv := newTestServer(t, sched, newTaskService(t))

	resp := doStaff(t, http.MethodPost, srv.URL+"/api/v1/cron/slow_refresh/run")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case err := <-jobCtxErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}

	require.Eventually(t, func() bool {
		res, err := sched.GetTask("slow_refresh")
		return err == nil && res.Status == cron.StatusFulfill
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTriggerUnknownJob(t *testing.T) {
	srv := newTestServer(t, cron.New(), newTaskService(t))
	resp := doStaff(t, http.MethodPost, srv.URL+"/api/v1/cron/missing/run")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCronEndpointsRequireStaff(t *testing.T) {
	srv := newTestServer(t, cron.New(), newTaskService(t))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/cron", nil)
	require.NoError(t, err)
	token, err := jwt.Sign("user-1", false, time.Minute)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeleteFinishedTasks(t *testing.T) {
	tasks := newTaskService(t)
	srv := newTestServer(t, cron.New(), tasks)
	ctx := context.Background()

	done, err := tasks.Enqueue(ctx, "cache:populate", nil, "")
	require.NoError(t, err)
	pending, err := tasks.Enqueue(ctx, "cache:populate", nil, "")
	require.NoError(t, err)
	require.NoError(t, tasks.UpdateStatus(ctx, done.ID, taskqueue.TaskCompleted, nil, ""))

	resp := doStaff(t, http.MethodDelete, srv.URL+"/api/v1/tasks")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := tasks.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = tasks.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestDeleteFinishedRejectsBadTimestamp(t *testing.T) {
	srv := newTestServer(t, cron.New(), newTaskService(t))
	resp := doStaff(t, http.MethodDelete, srv.URL+"/api/v1/tasks?before=yesterday")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
