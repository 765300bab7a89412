package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/orders"
)

// amountField accepts a monetary amount as either a JSON number or a
// quoted string, keeping the exact textual form for decimal parsing.
type amountField string

func (a *amountField) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}
	*a = amountField(data)
	return nil
}

// orderPayload is the order-create and tax-preview request body.
type orderPayload struct {
	Latitude  *float64    `json:"latitude"`
	Longitude *float64    `json:"longitude"`
	Timestamp string      `json:"timestamp"`
	Subtotal  amountField `json:"subtotal"`
}

// computeFromPayload validates the payload and runs the calculation.
func (s *Server) computeFromPayload(p orderPayload) (*orders.Computed, error) {
	var fields []string
	if p.Latitude == nil {
		fields = append(fields, "latitude")
	}
	if p.Longitude == nil {
		fields = append(fields, "longitude")
	}
	if p.Timestamp == "" {
		fields = append(fields, "timestamp")
	}
	if p.Subtotal == "" {
		fields = append(fields, "subtotal")
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("missing required fields", fields...)
	}

	ts, err := orders.ParseTimestamp(p.Timestamp)
	if err != nil {
		return nil, err
	}
	subtotal, err := decimal.NewFromString(string(p.Subtotal))
	if err != nil {
		return nil, apperr.Validation("subtotal must be a number", "subtotal")
	}

	return s.calc.Compute(*p.Latitude, *p.Longitude, ts, subtotal)
}

// handleCreateOrder computes and persists one order.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	computed, err := s.computeFromPayload(payload)
	if err != nil {
		writeError(w, err)
		return
	}

	user := currentUser(r.Context())
	order, err := s.orders.Insert(r.Context(), &user.ID, computed)
	if err != nil {
		writeError(w, err)
		return
	}
	order.AuthorLogin = &user.Login
	writeJSON(w, http.StatusCreated, orders.SerializeOrder(order))
}

// handleListOrders returns orders newest first with optional filters.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter orders.OrderFilter

	if code := q.Get("reporting_code"); code != "" {
		filter.ReportingCode = &code
	}
	for _, spec := range []struct {
		param string
		dst   **time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	} {
		if raw := q.Get(spec.param); raw != "" {
			ts, err := orders.ParseTimestamp(raw)
			if err != nil {
				writeError(w, err)
				return
			}
			*spec.dst = &ts
		}
	}
	for _, spec := range []struct {
		param string
		dst   **decimal.Decimal
	}{
		{"min_subtotal", &filter.MinSubtotal},
		{"max_subtotal", &filter.MaxSubtotal},
	} {
		if raw := q.Get(spec.param); raw != "" {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				writeError(w, apperr.Validation(spec.param+" must be a number", spec.param))
				return
			}
			*spec.dst = &d
		}
	}
	if raw := q.Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}

	list, err := s.orders.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders.SerializeOrders(list))
}

// handleOrderStats aggregates daily totals over an inclusive date range.
func (s *Server) handleOrderStats(w http.ResponseWriter, r *http.Request) {
	from, err := orders.ParseStatsDate(r.URL.Query().Get("from_date"), "from_date")
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := orders.ParseStatsDate(r.URL.Query().Get("to_date"), "to_date")
	if err != nil {
		writeError(w, err)
		return
	}
	if to.Before(from) {
		writeError(w, apperr.Validation("to_date must not precede from_date", "to_date"))
		return
	}

	points, err := s.orders.InRange(r.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days": orders.AggregateDaily(points, from, to),
	})
}
