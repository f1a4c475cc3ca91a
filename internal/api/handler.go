// Package api exposes the notifier over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/insightdelivered/bank-sms-notifier/internal/app"
	"github.com/insightdelivered/bank-sms-notifier/internal/logger"
	"github.com/insightdelivered/bank-sms-notifier/internal/models"
	"github.com/insightdelivered/bank-sms-notifier/internal/notify"
	"github.com/insightdelivered/bank-sms-notifier/internal/parser"
	"github.com/insightdelivered/bank-sms-notifier/internal/relay"
	"github.com/insightdelivered/bank-sms-notifier/internal/store"
)

// Version is reported by /api/health.
const Version = "1.0.0"

// Transactions is the read side of the transaction store.
type Transactions interface {
	Get(ctx context.Context, id string) (*store.Record, error)
	History(ctx context.Context, f store.Filter) ([]store.Record, error)
	Search(ctx context.Context, term string, limit int) ([]store.Record, error)
	Stats(ctx context.Context, days int) (store.Stats, error)
	LatestBalances(ctx context.Context) ([]store.BankBalance, error)
}

// Popups is the popup stack.
type Popups interface {
	Admit(tx models.Transaction) (notify.SlotInfo, bool)
	Remove(id string)
	CloseAll()
	Slots() []notify.SlotInfo
}

// Relay reports on the push stream.
type Relay interface {
	Status() relay.Status
	TestConnection(ctx context.Context) relay.TestResult
}

// Balances reports the balances observed since startup.
type Balances interface {
	Snapshot() []app.Balance
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// StatusResponse is returned by /api/status.
type StatusResponse struct {
	Relay     *relay.Status `json:"relay,omitempty"`
	Popups    int           `json:"popups"`
	MaxPopups int           `json:"maxPopups"`
	Version   string        `json:"version"`
}

// ParseRequest is the body of /api/parse, /api/validate and /api/popups.
type ParseRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// Handler holds the HTTP handlers for the API. Relay may be nil when the
// process runs without a push stream.
type Handler struct {
	Store     Transactions
	Popups    Popups
	Relay     Relay
	Balances  Balances
	MaxPopups int
	Log       zerolog.Logger

	limiter *rate.Limiter
}

// NewApp builds a fiber app with middleware and all routes registered.
func NewApp(h *Handler) *fiber.App {
	srv := fiber.New(fiber.Config{
		AppName:               "bank-sms-notifier",
		DisableStartupMessage: true,
		ErrorHandler:          h.handleError,
	})
	if h.limiter == nil {
		h.limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)
	}
	srv.Use(recover.New())
	srv.Use(h.requestLogger)
	srv.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	srv.Use(h.rateLimit)
	h.RegisterRoutes(srv)
	return srv
}

// RegisterRoutes sets up the API routes on r.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	api := r.Group("/api")
	api.Get("/health", h.handleHealth)
	api.Get("/status", h.handleStatus)
	api.Get("/samples", h.handleSamples)
	api.Post("/validate", h.handleValidate)
	api.Post("/parse", h.handleParse)

	api.Get("/popups", h.handleListPopups)
	api.Post("/popups", h.handleAdmit)
	api.Delete("/popups/:id", h.handleRemovePopup)
	api.Delete("/popups", h.handleCloseAll)

	api.Get("/transactions", h.handleHistory)
	api.Get("/transactions/search", h.handleSearch)
	api.Get("/transactions/:id", h.handleGet)
	api.Get("/stats", h.handleStats)
	api.Get("/balances", h.handleBalances)

	api.Post("/relay/test", h.handleRelayTest)
}

func (h *Handler) rateLimit(c *fiber.Ctx) error {
	if !h.limiter.Allow() {
		log := logger.FromContext(c.UserContext())
		log.Warn().Msg("rate limit exceeded")
		return writeError(c, fiber.StatusTooManyRequests, "Too many requests")
	}
	return c.Next()
}

// requestLogger attaches a logger carrying the request path to the user
// context.
func (h *Handler) requestLogger(c *fiber.Ctx) error {
	l := h.Log.With().Str("method", c.Method()).Str("path", c.Path()).Logger()
	c.SetUserContext(logger.WithContext(c.UserContext(), l))
	return c.Next()
}

func (h *Handler) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		log := logger.FromContext(c.UserContext())
		log.Error().Err(err).Msg("request failed")
	}
	return writeError(c, code, err.Error())
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": Version,
		"engine":  "fiber",
	})
}

func (h *Handler) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Popups:    len(h.Popups.Slots()),
		MaxPopups: h.MaxPopups,
		Version:   Version,
	}
	if h.Relay != nil {
		st := h.Relay.Status()
		resp.Relay = &st
	}
	return c.JSON(resp)
}

func (h *Handler) handleSamples(c *fiber.Ctx) error {
	return c.JSON(parser.SampleMessages())
}

func (h *Handler) handleValidate(c *fiber.Ctx) error {
	var req ParseRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	return c.JSON(parser.Validate(req.Text))
}

func (h *Handler) handleParse(c *fiber.Ctx) error {
	var req ParseRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	tx := parser.Parse(req.Text, req.Sender)
	if !tx.IsValid {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(tx)
	}
	return c.JSON(tx)
}

func (h *Handler) handleListPopups(c *fiber.Ctx) error {
	return c.JSON(h.Popups.Slots())
}

// handleAdmit shows a popup for the posted SMS. An empty body shows the
// demo transactions instead.
func (h *Handler) handleAdmit(c *fiber.Ctx) error {
	var req ParseRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}

	var txs []models.Transaction
	if strings.TrimSpace(req.Text) == "" {
		txs = parser.SampleTransactions()
	} else {
		tx := parser.Parse(req.Text, req.Sender)
		if !tx.IsValid {
			return writeError(c, fiber.StatusUnprocessableEntity, tx.Error)
		}
		txs = []models.Transaction{tx}
	}

	slots := make([]notify.SlotInfo, 0, len(txs))
	for _, tx := range txs {
		info, ok := h.Popups.Admit(tx)
		if !ok {
			return writeError(c, fiber.StatusServiceUnavailable, "Popup could not be shown")
		}
		slots = append(slots, info)
	}
	return c.Status(fiber.StatusCreated).JSON(slots)
}

func (h *Handler) handleRemovePopup(c *fiber.Ctx) error {
	h.Popups.Remove(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) handleCloseAll(c *fiber.Ctx) error {
	h.Popups.CloseAll()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) handleHistory(c *fiber.Ctx) error {
	f := store.Filter{
		Bank:      c.Query("bank"),
		Direction: c.Query("direction"),
		Limit:     c.QueryInt("limit"),
		Offset:    c.QueryInt("offset"),
	}
	if f.Direction != "" && f.Direction != store.DirectionIncoming && f.Direction != store.DirectionOutgoing {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Unknown direction: %q. Use incoming or outgoing.", f.Direction))
	}
	var err error
	if f.From, err = parseQueryTime(c.Query("from")); err != nil {
		return writeError(c, fiber.StatusBadRequest, "Invalid from: "+err.Error())
	}
	if f.To, err = parseQueryTime(c.Query("to")); err != nil {
		return writeError(c, fiber.StatusBadRequest, "Invalid to: "+err.Error())
	}

	recs, err := h.Store.History(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(nonNil(recs))
}

func (h *Handler) handleSearch(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return writeError(c, fiber.StatusBadRequest, "Query parameter q is required")
	}
	recs, err := h.Store.Search(c.UserContext(), q, c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(nonNil(recs))
}

func (h *Handler) handleGet(c *fiber.Ctx) error {
	rec, err := h.Store.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return writeError(c, fiber.StatusNotFound, "Transaction not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (h *Handler) handleStats(c *fiber.Ctx) error {
	st, err := h.Store.Stats(c.UserContext(), c.QueryInt("days", 30))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (h *Handler) handleBalances(c *fiber.Ctx) error {
	if h.Balances != nil {
		return c.JSON(h.Balances.Snapshot())
	}
	balances, err := h.Store.LatestBalances(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(balances)
}

func (h *Handler) handleRelayTest(c *fiber.Ctx) error {
	if h.Relay == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "Relay is not configured")
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	res := h.Relay.TestConnection(ctx)
	if !res.Success {
		return c.Status(fiber.StatusBadGateway).JSON(res)
	}
	return c.JSON(res)
}

// parseQueryTime accepts RFC 3339 timestamps or plain dates in local
// bank time.
func parseQueryTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, parser.Location)
}

// nonNil keeps empty results as [] rather than null.
func nonNil(recs []store.Record) []store.Record {
	if recs == nil {
		return []store.Record{}
	}
	return recs
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{
		Success: false,
		Error:   msg,
	})
}
