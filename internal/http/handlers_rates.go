package http

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if s.converter == nil {
		writeError(w, http.StatusServiceUnavailable, "rates_unavailable", "exchange rates are not configured")
		return
	}

	q := r.URL.Query()

	amount, err := decimal.NewFromString(strings.TrimSpace(q.Get("amount")))
	if err != nil {
		writeServiceError(r.Context(), w, &core.ValidationError{Field: "amount", Reason: "must be a decimal number"})
		return
	}

	from := strings.ToUpper(strings.TrimSpace(q.Get("from")))
	to := strings.ToUpper(strings.TrimSpace(q.Get("to")))
	if from == "" || to == "" {
		writeServiceError(r.Context(), w, &core.ValidationError{Field: "from", Reason: "from and to currencies are required"})
		return
	}

	conversion, err := s.converter.Convert(r.Context(), amount, from, to)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, toConversionResponse(conversion))
}
