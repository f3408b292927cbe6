package reconcile

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"loadline_backend/platform/apperr"
	"loadline_backend/platform/validator"
)

func runRequest(t *testing.T, env *sweepEnv, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := NewHandler(env.service, validator.New(), 24)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/ops/reconcile", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.HandleRun(c)
	return rec
}

func TestHandleRunReturnsReport(t *testing.T) {
	env := newSweepEnv()

	rec := runRequest(t, env, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"checked":0`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHandleRunMapsUnavailableUpstreamTo502(t *testing.T) {
	env := newSweepEnv()
	env.platform.listErr = apperr.Wrap(apperr.KindUnavailable,
		"voice platform request failed", errors.New("connect timeout"))

	rec := runRequest(t, env, "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "voice platform request failed") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHandleRunRejectsOutOfRangeWindow(t *testing.T) {
	env := newSweepEnv()

	rec := runRequest(t, env, `{"hoursBack": 9999}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
