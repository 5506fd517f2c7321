package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"option-analyzer/internal/analysis/chain"
	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/ingest"
	"option-analyzer/internal/logging"
	"option-analyzer/internal/models"
	"option-analyzer/internal/resilience"
	"option-analyzer/internal/store"
	"option-analyzer/internal/stream"
)

// Analyst produces a structured analysis of a chain.
type Analyst interface {
	Analyze(ctx context.Context, c *models.OptionChain) (*models.OptionAnalysis, error)
}

// Deps are the collaborators of ChainHandler. Analyst, Breaker and Metrics
// may be nil.
type Deps struct {
	Engine   *chain.Engine
	Analyst  Analyst
	Breaker  *resilience.CircuitBreaker
	Provider string
	Store    store.DataStore
	Hub      *stream.Hub
	Metrics  *Metrics
	Logger   zerolog.Logger
}

// ChainHandler serves the chain, watchlist and candidate routes.
type ChainHandler struct {
	Deps
}

// NewHandler creates a ChainHandler, filling in a wall-clock engine and a
// fresh hub when none are given.
func NewHandler(d Deps) *ChainHandler {
	if d.Engine == nil {
		d.Engine = chain.NewEngine()
	}
	if d.Hub == nil {
		d.Hub = stream.NewHub()
	}
	return &ChainHandler{Deps: d}
}

// RegisterRoutes implements Handler.
func (h *ChainHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.health)

	api := e.Group("/api")

	api.POST("/chains/analyze", h.analyze)
	api.POST("/chains/scraped", h.analyzeScraped)
	api.POST("/chains/ai", h.analyzeAI)
	api.POST("/chains/pin", h.pin)
	api.GET("/stream", h.streamSnapshots)

	api.GET("/watchlist", h.listWatchlist)
	api.POST("/watchlist", h.saveWatchlist)
	api.DELETE("/watchlist", h.clearWatchlist)
	api.GET("/watchlist/:id", h.getWatchlistItem)
	api.DELETE("/watchlist/:id", h.deleteWatchlistItem)
	api.PUT("/watchlist/order", h.reorderWatchlist)
	api.PATCH("/watchlist/valuation", h.updateValuation)

	api.GET("/candidates", h.listCandidates)
	api.POST("/candidates", h.saveCandidate)
	api.DELETE("/candidates", h.clearCandidates)
	api.DELETE("/candidates/:id", h.removeCandidate)
	api.GET("/candidates/pinned", h.pinnedStrikes)
}

func (h *ChainHandler) health(c echo.Context) error {
	body := map[string]interface{}{
		"status":   "ok",
		"provider": h.Provider,
		"aiReady":  h.Analyst != nil,
		"stream":   h.Hub.State(),
	}
	if h.Breaker != nil {
		stats := h.Breaker.Stats()
		body["breaker"] = stats
		if stats.State == resilience.CircuitOpen {
			body["status"] = "degraded"
		}
	}
	return SuccessResponse(c, body)
}

// accept decodes, analyses and publishes one inbound chain.
func (h *ChainHandler) accept(c echo.Context) (*models.OptionChain, chain.Report, error) {
	return h.acceptWith(c, ingest.Decode)
}

func (h *ChainHandler) acceptWith(c echo.Context, decode func(io.Reader) (*models.OptionChain, error)) (*models.OptionChain, chain.Report, error) {
	oc, err := decode(c.Request().Body)
	if err != nil {
		h.Metrics.RecordRejectedChain()
		return nil, chain.Report{}, err
	}

	report := h.Engine.Analyze(oc)
	h.Metrics.RecordChain(oc.Symbol, len(oc.Strikes), report.Statistics.PCR)
	logging.LogChainReceived(h.Logger, oc.Symbol, oc.ExpirationDate, len(oc.Strikes))

	if !h.Hub.Publish(stream.Snapshot{Symbol: oc.Symbol, Chain: oc, Report: report}) {
		h.Logger.Warn().Str("symbol", oc.Symbol).Msg("snapshot queue full, dropped")
	}
	return oc, report, nil
}

func (h *ChainHandler) analyze(c echo.Context) error {
	_, report, err := h.accept(c)
	if err != nil {
		return err
	}
	return SuccessResponse(c, report)
}

// analyzeScraped accepts the raw text table when the page scraper could not
// type the rows itself.
func (h *ChainHandler) analyzeScraped(c echo.Context) error {
	_, report, err := h.acceptWith(c, ingest.DecodeScraped)
	if err != nil {
		return err
	}
	return SuccessResponse(c, report)
}

// AIResult is the response of /api/chains/ai.
type AIResult struct {
	Report      chain.Report           `json:"report"`
	Analysis    *models.OptionAnalysis `json:"analysis"`
	WatchlistID string                 `json:"watchlistId,omitempty"`
}

func (h *ChainHandler) analyzeAI(c echo.Context) error {
	if h.Analyst == nil {
		return apperrors.NewAgentError(h.Provider, "analyze", apperrors.ErrNotConfigured)
	}

	oc, report, err := h.accept(c)
	if err != nil {
		return err
	}

	ctx := logging.WithLogger(c.Request().Context(), logging.WithOperation(h.Logger, "chains.ai"))
	start := time.Now()
	analysis, err := h.Analyst.Analyze(ctx, oc)
	h.Metrics.RecordAnalysis(h.Provider, time.Since(start), err)
	if err != nil {
		return err
	}

	result := AIResult{Report: report, Analysis: analysis}
	if c.QueryParam("save") == "true" && h.Store != nil {
		item := &models.WatchlistItem{
			Symbol:         oc.Symbol,
			ExpirationDate: oc.ExpirationDate,
			Price:          oc.Price,
			Valuation:      oc.Valuation,
			Analysis:       analysis,
			Chain:          oc,
			URL:            c.QueryParam("url"),
		}
		if err := h.Store.SaveWatchlistItem(c.Request().Context(), item); err != nil {
			return err
		}
		result.WatchlistID = item.ID
	}
	return SuccessResponse(c, result)
}

// PinRequest pins one side of a strike from a chain into the candidate pool.
type PinRequest struct {
	Chain  *models.OptionChain `json:"chain" validate:"required"`
	Strike float64             `json:"strike" validate:"gt=0"`
	Type   models.ContractType `json:"type" validate:"oneof=call put"`
	URL    string              `json:"url"`
}

func (h *ChainHandler) pin(c echo.Context) error {
	if h.Store == nil {
		return apperrors.ErrNotConfigured
	}

	var req PinRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedChain, err)
	}
	if req.Chain != nil {
		ingest.Normalize(req.Chain)
	}
	if err := ingest.ValidateStruct(&req); err != nil {
		return err
	}

	cand, err := h.Engine.Pin(req.Chain, req.Strike, req.Type)
	if err != nil {
		return err
	}
	cand.URL = req.URL
	added, err := h.Store.SaveCandidate(c.Request().Context(), &cand)
	if err != nil {
		return err
	}
	if !added {
		return SuccessResponse(c, map[string]interface{}{"added": false, "candidate": cand})
	}
	return CreatedResponse(c, map[string]interface{}{"added": true, "candidate": cand})
}

// streamSnapshots writes accepted chains as server-sent events until the
// client goes away.
func (h *ChainHandler) streamSnapshots(c echo.Context) error {
	symbol := strings.ToUpper(strings.TrimSpace(c.QueryParam("symbol")))
	ch, cancel := h.Hub.Subscribe(symbol)
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(snap)
			if err != nil {
				h.Logger.Warn().Err(err).Str("symbol", snap.Symbol).Msg("encoding snapshot")
				continue
			}
			if _, err := fmt.Fprintf(res, "event: chain\ndata: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func (h *ChainHandler) requireStore() error {
	if h.Store == nil {
		return apperrors.ErrNotConfigured
	}
	return nil
}

func (h *ChainHandler) listWatchlist(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	items, err := h.Store.GetWatchlist(c.Request().Context())
	if err != nil {
		return err
	}
	return SuccessResponse(c, items)
}

func (h *ChainHandler) getWatchlistItem(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	item, err := h.Store.GetWatchlistItem(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, item)
}

func (h *ChainHandler) saveWatchlist(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	var item models.WatchlistItem
	if err := c.Bind(&item); err != nil {
		return err
	}
	item.Symbol = strings.ToUpper(strings.TrimSpace(item.Symbol))
	if err := ingest.ValidateStruct(&item); err != nil {
		return err
	}
	if item.Chain != nil {
		ingest.Normalize(item.Chain)
		if err := ingest.Validate(item.Chain); err != nil {
			return err
		}
	}
	if err := h.Store.SaveWatchlistItem(c.Request().Context(), &item); err != nil {
		return err
	}
	return CreatedResponse(c, item)
}

func (h *ChainHandler) deleteWatchlistItem(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	if err := h.Store.DeleteWatchlistItem(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChainHandler) clearWatchlist(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	if err := h.Store.ClearWatchlist(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ReorderRequest lists watchlist ids in their new order.
type ReorderRequest struct {
	IDs []string `json:"ids" validate:"required"`
}

func (h *ChainHandler) reorderWatchlist(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	var req ReorderRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := ingest.ValidateStruct(&req); err != nil {
		return err
	}
	if err := h.Store.ReorderWatchlist(c.Request().Context(), req.IDs); err != nil {
		return err
	}
	return h.listWatchlist(c)
}

// ValuationRequest sets the user's valuation on a saved chain.
type ValuationRequest struct {
	Symbol         string   `json:"symbol" validate:"required"`
	ExpirationDate string   `json:"expirationDate" validate:"required"`
	Valuation      *float64 `json:"valuation" validate:"required"`
}

func (h *ChainHandler) updateValuation(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	var req ValuationRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := ingest.ValidateStruct(&req); err != nil {
		return err
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := h.Store.UpdateValuation(c.Request().Context(), symbol, req.ExpirationDate, *req.Valuation); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChainHandler) listCandidates(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	out, err := h.Store.GetCandidates(c.Request().Context())
	if err != nil {
		return err
	}
	return SuccessResponse(c, out)
}

func (h *ChainHandler) saveCandidate(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	var cand models.Candidate
	if err := c.Bind(&cand); err != nil {
		return err
	}
	cand.Symbol = strings.ToUpper(strings.TrimSpace(cand.Symbol))
	if err := ingest.ValidateStruct(&cand); err != nil {
		return err
	}
	added, err := h.Store.SaveCandidate(c.Request().Context(), &cand)
	if err != nil {
		return err
	}
	if !added {
		return SuccessResponse(c, map[string]interface{}{"added": false, "candidate": cand})
	}
	return CreatedResponse(c, map[string]interface{}{"added": true, "candidate": cand})
}

func (h *ChainHandler) removeCandidate(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	if err := h.Store.RemoveCandidate(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChainHandler) clearCandidates(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	if err := h.Store.ClearCandidates(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChainHandler) pinnedStrikes(c echo.Context) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.QueryParam("symbol")))
	expiration := c.QueryParam("expirationDate")
	if symbol == "" || expiration == "" {
		return apperrors.NewValidationError("symbol", symbol, "symbol and expirationDate are required")
	}
	strikes, err := h.Store.PinnedStrikes(c.Request().Context(), symbol, expiration)
	if err != nil {
		return err
	}
	return SuccessResponse(c, strikes)
}
