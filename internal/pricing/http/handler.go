package pricinghttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/printworks/storefront/internal/history"
	"github.com/printworks/storefront/internal/observability"
	"github.com/printworks/storefront/internal/platform/httpx"
	"github.com/printworks/storefront/internal/pricing"
	"github.com/printworks/storefront/internal/pricing/importer"
)

// DefaultImportMaxBytes bounds uploaded price sheets when no limit is configured.
const DefaultImportMaxBytes = 10 << 20

// QuoteService prices selections and lists options.
type QuoteService interface {
	Quote(ctx context.Context, slug string, sel pricing.Selection, qty int64) (pricing.Quote, error)
	Options(ctx context.Context, slug string) (pricing.Catalog, error)
}

// AdminService performs audited admin edits.
type AdminService interface {
	UpsertService(ctx context.Context, slug, name, category string) (pricing.Service, error)
	DeleteService(ctx context.Context, id int64) error
	CreateRow(ctx context.Context, serviceID int64, attrs pricing.Attributes, rule pricing.Rule) (pricing.PriceRow, error)
	ReplaceRow(ctx context.Context, rowID int64, attrs pricing.Attributes, rule pricing.Rule) (pricing.PriceRow, error)
	DeactivateRow(ctx context.Context, id int64) error
	DeleteRow(ctx context.Context, id int64) error
	History(ctx context.Context, slug string, limit int) (pricing.Service, []history.Entry, error)
}

// ServiceReader lists stored services and rows for the admin screens.
type ServiceReader interface {
	ListServices(ctx context.Context, filters pricing.ListFilters) ([]pricing.Service, error)
	GetService(ctx context.Context, id int64) (pricing.Service, error)
	ListPriceRows(ctx context.Context, serviceID int64, activeOnly bool) ([]pricing.PriceRow, error)
}

// Importer loads price sheets.
type Importer interface {
	ImportFile(ctx context.Context, format importer.Format, data []byte) (importer.Result, error)
}

// ImportLocker serialises imports across server instances.
type ImportLocker interface {
	LockImport(ctx context.Context, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Metrics records pricing outcomes.
type Metrics interface {
	ObserveQuote(outcome string)
	ObserveImport(imported, skipped int)
}

// Handler serves the public quote API and the pricing admin API.
type Handler struct {
	logger         *slog.Logger
	quotes         QuoteService
	admin          AdminService
	reader         ServiceReader
	imports        Importer
	metrics        Metrics
	validate       *validator.Validate
	importMaxBytes int64
	importLock     ImportLocker
	importLockTTL  time.Duration
}

// NewHandler builds a pricing handler. metrics may be nil.
func NewHandler(logger *slog.Logger, quotes QuoteService, admin AdminService, reader ServiceReader, imports Importer, metrics Metrics, importMaxBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if importMaxBytes <= 0 {
		importMaxBytes = DefaultImportMaxBytes
	}
	return &Handler{
		logger:         logger,
		quotes:         quotes,
		admin:          admin,
		reader:         reader,
		imports:        imports,
		metrics:        metrics,
		validate:       validator.New(),
		importMaxBytes: importMaxBytes,
	}
}

// WithImportLock makes imports fail with 409 while another import runs.
// The lock expires after ttl even if its holder dies.
func (h *Handler) WithImportLock(lock ImportLocker, ttl time.Duration) *Handler {
	h.importLock = lock
	h.importLockTTL = ttl
	return h
}

var displayLanguages = language.NewMatcher([]language.Tag{
	language.BritishEnglish,
	language.AmericanEnglish,
	language.German,
	language.French,
})

type quoteResponse struct {
	Service      string             `json:"service"`
	Quantity     int64              `json:"quantity"`
	Net          decimal.Decimal    `json:"net"`
	VAT          decimal.Decimal    `json:"vat"`
	Gross        decimal.Decimal    `json:"gross"`
	Rounded      pricing.Amounts    `json:"rounded"`
	Display      map[string]string  `json:"display"`
	MatchedAttrs pricing.Attributes `json:"matchedAttrs"`
	RuleKind     pricing.RuleKind   `json:"ruleKind"`
	Tier         *pricing.Tier      `json:"tier,omitempty"`
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	query := r.URL.Query()
	qty, err := strconv.ParseInt(strings.TrimSpace(query.Get("qty")), 10, 64)
	if err != nil {
		h.observeQuote(observability.QuoteInvalid)
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be a whole number")
		return
	}
	sel := make(pricing.Selection, len(query))
	for key, values := range query {
		if key == "qty" || len(values) == 0 {
			continue
		}
		sel[key] = values[0]
	}

	quote, err := h.quotes.Quote(r.Context(), slug, sel, qty)
	if err != nil {
		h.observeQuote(quoteOutcome(err))
		h.respondError(w, "quote", err)
		return
	}
	h.observeQuote(observability.QuoteOK)

	tag, _ := language.MatchStrings(displayLanguages, r.Header.Get("Accept-Language"))
	httpx.JSON(w, http.StatusOK, quoteResponse{
		Service:      quote.Service.Slug,
		Quantity:     quote.Quantity,
		Net:          quote.Net,
		VAT:          quote.VAT,
		Gross:        quote.Gross,
		Rounded:      quote.Rounded(),
		Display:      quote.DisplayAmounts(tag),
		MatchedAttrs: quote.MatchedAttrs,
		RuleKind:     quote.RuleKind,
		Tier:         quote.Tier,
	})
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.quotes.Options(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondError(w, "options", err)
		return
	}
	httpx.JSON(w, http.StatusOK, catalog)
}

func quoteOutcome(err error) string {
	switch {
	case errors.Is(err, pricing.ErrNoMatchingRule):
		return observability.QuoteNoMatch
	case errors.Is(err, pricing.ErrNotFound):
		return observability.QuoteNotFound
	case pricing.IsValidation(err):
		return observability.QuoteInvalid
	}
	return observability.QuoteError
}

func (h *Handler) observeQuote(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveQuote(outcome)
	}
}

// respondError logs unexpected failures before mapping err to a problem
// response.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, httpx.ErrNotFound),
		errors.Is(err, httpx.ErrNoMatch),
		errors.Is(err, httpx.ErrDuplicate),
		errors.Is(err, httpx.ErrValidation):
	default:
		h.logger.Error("pricing request failed", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.ErrNotFound
	}
	return id, nil
}
