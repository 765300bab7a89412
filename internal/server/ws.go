package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/model"
	"github.com/sells-group/taxpoint/internal/orders"
)

// tasksPushInterval paces the task snapshot frames.
const tasksPushInterval = 300 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func closePolicyViolation(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
}

// handleTasksWS pushes task snapshots until the peer disconnects. The peer
// is authorized after the upgrade so a failure can close with a
// policy-violation code.
func (s *Server) handleTasksWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	user, err := s.authenticate(r)
	if err != nil || !user.HasAuthority(model.AuthorityReadOrders) {
		closePolicyViolation(conn, "authorization required")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The channel is push-only; reads only serve to notice the peer
	// closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Every(tasksPushInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		tasks, err := s.tasks.ListNewestFirst(ctx)
		if err != nil {
			zap.L().Error("task snapshot read", zap.Error(err))
			return
		}
		if tasks == nil {
			tasks = []model.FileTask{}
		}
		if err := conn.WriteJSON(map[string]any{"tasks": tasks}); err != nil {
			return
		}
	}
}

type wsResult struct {
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *errorBody `json:"error,omitempty"`
}

func wsErrorCode(kind apperr.Kind) string {
	switch kind {
	case apperr.KindValidation, apperr.KindParse:
		return "validation_error"
	case apperr.KindOutsideCoverage:
		return "outside_coverage"
	case apperr.KindRateNotFound:
		return "tax_rate_not_found"
	default:
		return "internal_error"
	}
}

// handleTaxPreviewWS answers order payloads with computed tax breakdowns,
// request/response, until the peer closes.
func (s *Server) handleTaxPreviewWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	user, err := s.authenticate(r)
	if err != nil || !user.HasAuthority(model.AuthorityReadOrders) {
		closePolicyViolation(conn, "authorization required")
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var payload orderPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			if werr := conn.WriteJSON(wsResult{OK: false, Error: &errorBody{
				Code: "invalid_json", Detail: "request must be a JSON object",
			}}); werr != nil {
				return
			}
			continue
		}

		computed, err := s.computeFromPayload(payload)
		if err != nil {
			if werr := conn.WriteJSON(wsResult{OK: false, Error: &errorBody{
				Code:   wsErrorCode(apperr.KindOf(err)),
				Detail: apperr.DetailOf(err),
				Fields: apperr.FieldsOf(err),
			}}); werr != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(wsResult{OK: true, Result: orders.SerializePreview(computed)}); err != nil {
			return
		}
	}
}
