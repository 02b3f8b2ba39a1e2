package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/researchaccelerator-hub/housing-map-crawler/common"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
	"github.com/researchaccelerator-hub/housing-map-crawler/supervisor"
)

var cities = []model.City{
	{Name: "Shanghai", Code: "310000"},
	{Name: "Beijing", Code: "110000"},
}

type MockController struct {
	mock.Mock
}

func (m *MockController) Start(city model.City) (supervisor.Status, error) {
	args := m.Called(city)
	return args.Get(0).(supervisor.Status), args.Error(1)
}

func (m *MockController) Stop() error {
	return m.Called().Error(0)
}

func (m *MockController) Status() supervisor.Status {
	return m.Called().Get(0).(supervisor.Status)
}

type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Report(ctx context.Context, ds, city string) (model.ProgressReport, error) {
	args := m.Called(ctx, ds, city)
	return args.Get(0).(model.ProgressReport), args.Error(1)
}

func setup(t *testing.T) (*Server, *MockController, *MockReporter) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl, reports := new(MockController), new(MockReporter)
	s := New(ctrl, reports, cities, t.TempDir())
	s.now = func() time.Time { return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.Local) }
	return s, ctrl, reports
}

func do(t *testing.T, s *Server, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	s.Router().ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func TestHealthAndCities(t *testing.T) {
	s, _, _ := setup(t)

	w, body := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, body = do(t, s, http.MethodGet, "/cities")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"Shanghai": "310000", "Beijing": "110000"}, body)
}

func TestStart(t *testing.T) {
	s, ctrl, _ := setup(t)
	ctrl.On("Start", cities[0]).Return(supervisor.Status{State: supervisor.Running, CityCode: "310000", DS: "20250601"}, nil).Once()

	w, body := do(t, s, http.MethodPost, "/spider/start?city=Shanghai")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "310000", body["city_code"])
	assert.Equal(t, "running", body["status"].(map[string]any)["state"])
	ctrl.AssertExpectations(t)
}

func TestStartByCodeWhileRunning(t *testing.T) {
	s, ctrl, _ := setup(t)
	ctrl.On("Start", cities[1]).Return(supervisor.Status{State: supervisor.Running, CityCode: "310000"}, supervisor.ErrAlreadyRunning)

	w, body := do(t, s, http.MethodPost, "/spider/start?city=110000")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_running", body["error"])
}

func TestStartRejectsBadCity(t *testing.T) {
	s, ctrl, _ := setup(t)

	w, body := do(t, s, http.MethodPost, "/spider/start")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_parameter", body["error"])

	w, body = do(t, s, http.MethodPost, "/spider/start?city=Atlantis")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_city", body["error"])
	ctrl.AssertNotCalled(t, "Start", mock.Anything)
}

func TestStop(t *testing.T) {
	s, ctrl, _ := setup(t)
	ctrl.On("Stop").Return(nil).Once()
	ctrl.On("Stop").Return(supervisor.ErrNotRunning).Once()

	w, _ := do(t, s, http.MethodPost, "/spider/stop")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := do(t, s, http.MethodPost, "/spider/stop")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_running", body["error"])
}

func TestStatus(t *testing.T) {
	s, ctrl, _ := setup(t)
	ctrl.On("Status").Return(supervisor.Status{State: supervisor.Stopped, Err: "boom"})

	w, body := do(t, s, http.MethodGet, "/spider/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["is_spider_running"])
	assert.Equal(t, "boom", body["status"].(map[string]any)["error"])
}

func TestStatusBeforeFirstRun(t *testing.T) {
	s, ctrl, _ := setup(t)
	ctrl.On("Status").Return(supervisor.Status{State: supervisor.NotStarted})

	w, body := do(t, s, http.MethodGet, "/spider/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body["status"].(map[string]any), "run_id")
}

func TestProgress(t *testing.T) {
	s, _, reports := setup(t)
	report := model.NewProgressReport("20250601", "310000")
	report.Houses = 42
	report.HouseDetails = model.StageProgress{Finished: 10, Total: 42}
	reports.On("Report", mock.Anything, "20250601", "310000").Return(report, nil)
	reports.On("Report", mock.Anything, "20250531", "310000").Return(model.ProgressReport{}, assert.AnError)

	w, body := do(t, s, http.MethodGet, "/spider/progress?city=Shanghai")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(42), body["houses"])
	assert.Equal(t, map[string]any{"finished": float64(10), "total": float64(42)}, body["house_details"])

	w, _ = do(t, s, http.MethodGet, "/spider/progress?city=310000&ds=20250531")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w, body = do(t, s, http.MethodGet, "/spider/progress?city=Shanghai&ds=June")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_parameter", body["error"])
}

func TestRunLog(t *testing.T) {
	s, _, _ := setup(t)
	path := common.RunLogPath(s.logDir, "310000", "20250601")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0644))

	w, body := do(t, s, http.MethodGet, "/spider/log?city=Shanghai")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "one\ntwo\nthree", body["spider_log"])
	assert.Equal(t, "20250601", body["ds"])

	_, body = do(t, s, http.MethodGet, "/spider/log?city=Shanghai&tail=1")
	assert.Equal(t, "three", body["spider_log"])

	w, body = do(t, s, http.MethodGet, "/spider/log?city=Beijing&ds=20250601")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", body["spider_log"])

	w, _ = do(t, s, http.MethodGet, "/spider/log?city=Shanghai&tail=-3")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
