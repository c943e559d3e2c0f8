package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/frontier/internal/metrics"
	"github.com/aristath/frontier/internal/modules/optimization"
)

const (
	streamReadTimeout  = 10 * time.Second
	streamWriteTimeout = 5 * time.Second
	streamReadLimit    = 4 << 20
)

// Stream message types.
const (
	StreamMessagePoint  = "point"
	StreamMessageResult = "result"
	StreamMessageError  = "error"
)

// StreamRequest is the single message a streaming client sends. A null
// price is a missing observation.
type StreamRequest struct {
	Prices [][]*float64 `json:"prices"`
	Alpha  *float64     `json:"alpha,omitempty"`
}

// StreamMessage is one server-to-client frame.
type StreamMessage struct {
	Type   string                       `json:"type"`
	Index  *int                         `json:"index,omitempty"`
	Point  *optimization.PortfolioPoint `json:"point,omitempty"`
	Result *optimization.FrontierResult `json:"result,omitempty"`
	Error  string                       `json:"error,omitempty"`
}

// HandleStreamFrontier handles GET /ws/efficient_frontier. Frontier points
// are pushed as their solves complete, followed by the full result.
func (h *Handler) HandleStreamFrontier(w http.ResponseWriter, r *http.Request) {
	runID := uuid.New().String()
	log := h.log.With().Str("run_id", runID).Logger()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.cfg.AllowedOrigins),
	})
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected server error")
	conn.SetReadLimit(streamReadLimit)

	metrics.WebSocketClients.Inc()
	defer metrics.WebSocketClients.Dec()

	ctx := r.Context()

	var req StreamRequest
	readCtx, cancel := context.WithTimeout(ctx, streamReadTimeout)
	err = wsjson.Read(readCtx, conn, &req)
	cancel()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read stream request")
		h.closeWithError(ctx, conn, "invalid request: expected {\"prices\": [[...]], \"alpha\": 0.5}")
		return
	}

	// Any further client message or a disconnect cancels the computation
	ctx = conn.CloseRead(ctx)

	alpha := h.cfg.DefaultAlpha
	if req.Alpha != nil {
		alpha = *req.Alpha
	}

	model, err := optimization.BuildReturnModel(toPriceSeries(req.Prices))
	if err != nil {
		metrics.FrontierRequestsTotal.WithLabelValues("ws_efficient_frontier", "rejected").Inc()
		h.closeWithError(ctx, conn, err.Error())
		return
	}

	// One slot per frontier point, so progress callbacks never block a solve
	updates := make(chan StreamMessage, h.service.Points())
	writeErr := make(chan error, 1)
	go func() {
		var werr error
		for msg := range updates {
			if werr == nil {
				werr = writeMessage(ctx, conn, msg)
			}
		}
		writeErr <- werr
	}()

	result, err := h.service.ComputeWithProgress(ctx, model, alpha, func(index int, point optimization.PortfolioPoint) {
		updates <- StreamMessage{Type: StreamMessagePoint, Index: &index, Point: &point}
	})
	close(updates)
	if werr := <-writeErr; werr != nil {
		log.Info().Err(werr).Msg("Stream client went away")
		metrics.FrontierRequestsTotal.WithLabelValues("ws_efficient_frontier", "cancelled").Inc()
		return
	}
	if err != nil {
		if errors.Is(err, optimization.ErrMalformedInput) {
			metrics.FrontierRequestsTotal.WithLabelValues("ws_efficient_frontier", "rejected").Inc()
		} else {
			metrics.FrontierRequestsTotal.WithLabelValues("ws_efficient_frontier", "cancelled").Inc()
		}
		h.closeWithError(ctx, conn, err.Error())
		return
	}

	if err := writeMessage(ctx, conn, StreamMessage{Type: StreamMessageResult, Result: result}); err != nil {
		log.Info().Err(err).Msg("Failed to send stream result")
		return
	}

	metrics.FrontierRequestsTotal.WithLabelValues("ws_efficient_frontier", "ok").Inc()
	log.Debug().Int("points", len(result.EfficientFrontier)).Msg("Frontier stream completed")
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) closeWithError(ctx context.Context, conn *websocket.Conn, message string) {
	if err := writeMessage(ctx, conn, StreamMessage{Type: StreamMessageError, Error: message}); err != nil {
		h.log.Debug().Err(err).Msg("Failed to send stream error")
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

func toPriceSeries(raw [][]*float64) []optimization.PriceSeries {
	series := make([]optimization.PriceSeries, len(raw))
	for i, prices := range raw {
		series[i] = make(optimization.PriceSeries, len(prices))
		for t, p := range prices {
			if p == nil {
				series[i][t] = math.NaN()
			} else {
				series[i][t] = *p
			}
		}
	}
	return series
}

// originPatterns converts allowed origins ("http://localhost:3000") into the
// host patterns the websocket origin check expects ("localhost:3000").
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			patterns = append(patterns, "*")
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
