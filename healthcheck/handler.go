package healthcheck

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/web"
)

const contentType = "application/json;charset=UTF-8"

// Handle serves the report of the procedure named by the path below the
// route, or of every procedure at the route root. UP answers 200, DOWN 503,
// a procedure that crashed 500, and an empty registry 204.
func (h *HealthChecks) Handle(ctx *web.RoutingContext) {
	id := strings.Trim(ctx.RemainingPath(), "/")
	rctx := ctx.Context()

	var (
		report map[string]any
		err    error
	)
	if id == "" {
		report, err = h.InvokeAll(rctx).Await(rctx)
	} else {
		fut, cerr := h.Check(rctx, id)
		if cerr != nil {
			err = cerr
		} else {
			report, err = fut.Await(rctx)
		}
	}

	resp := ctx.Response().PutHeader("Content-Type", contentType)
	if err != nil {
		code := http.StatusBadRequest
		if stderrors.Is(err, errors.ErrNotFound) {
			code = http.StatusNotFound
		}
		body, _ := sjson.Set("", "message", errors.AsFailure(err).Message)
		resp.SetStatusCode(code).EndWith(body)
		return
	}

	status := http.StatusOK
	if report["status"] != "UP" {
		status = http.StatusServiceUnavailable
		if procedureCrashed(report) {
			status = http.StatusInternalServerError
		}
	} else if checks, ok := report["checks"].([]any); ok && len(checks) == 0 {
		resp.SetStatusCode(http.StatusNoContent).End()
		return
	}

	raw, err := json.Marshal(report)
	if err == nil {
		raw, err = sjson.SetBytes(raw, "outcome", report["status"])
	}
	if err != nil {
		Logger().Error("encode health report", zap.Error(err))
		resp.SetStatusCode(http.StatusInternalServerError).End()
		return
	}
	resp.SetStatusCode(status).EndWith(string(raw))
}

func procedureCrashed(report map[string]any) bool {
	if data, ok := report["data"].(map[string]any); ok {
		if crashed, _ := data[procedureFailure].(bool); crashed {
			return true
		}
	}
	checks, _ := report["checks"].([]any)
	for _, c := range checks {
		if m, ok := c.(map[string]any); ok && procedureCrashed(m) {
			return true
		}
	}
	return false
}
