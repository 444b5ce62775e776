package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"affiliate-signup/internal/common/config"
	"affiliate-signup/internal/common/errors"
	commonhttp "affiliate-signup/internal/common/http"
	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/common/metrics"
	"affiliate-signup/internal/common/observability"
	"affiliate-signup/internal/models"
)

const Path = "/create-affiliate"

// Executor runs one decoded request. *Service satisfies it.
type Executor interface {
	Execute(ctx context.Context, payload models.Payload) (interface{}, error)
}

type Handler struct {
	config  *Config
	logger  logger.Logger
	service Executor
	errors  *errors.ErrorHandler
	obs     *observability.Observability
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Logger       logger.Logger
	Dependencies ServiceDependencies
	// Service overrides the executor built from Dependencies.
	Service Executor
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	proxyConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := proxyConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for create-affiliate: %w", err)
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}

	handler := &Handler{
		config: proxyConfig,
		logger: loggerInstance,
		errors: errors.NewErrorHandler(loggerInstance),
		obs:    opts.Dependencies.Observability,
	}

	if opts.Service != nil {
		handler.service = opts.Service
		return handler, nil
	}
	if opts.Dependencies.Upstream == nil {
		return nil, fmt.Errorf("create-affiliate requires an upstream client")
	}
	deps := opts.Dependencies
	if deps.Logger == nil {
		deps.Logger = loggerInstance
	}
	handler.service = NewService(deps, proxyConfig)
	return handler, nil
}

// Routes returns the endpoint wrapped with CORS and method filtering.
// Routes wraps the handler for browsers. inner middleware such as the rate
// limiter runs inside CORS, so its rejections still carry the CORS headers.
func (h *Handler) Routes(inner ...commonhttp.Middleware) http.Handler {
	mws := []commonhttp.Middleware{
		commonhttp.CORS(h.config.AllowedOrigin),
		commonhttp.AllowMethods(http.MethodPost),
	}
	return commonhttp.Chain(h, append(mws, inner...)...)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	metrics.ProxyRequestsActive.Inc()
	defer metrics.ProxyRequestsActive.Dec()

	mode := models.ModeLegacy.MetricLabel()
	status := http.StatusOK
	defer func() {
		metrics.ProxyRequestsTotal.WithLabelValues(mode, strconv.Itoa(status)).Inc()
		metrics.ProxyRequestDuration.WithLabelValues(mode).Observe(time.Since(startTime).Seconds())
	}()

	ctx, cancel := context.WithTimeout(r.Context(), h.config.Timeout)
	defer cancel()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes))
	if err != nil {
		status = h.fail(ctx, w, r, mode, errors.NewInvalidJSONError(err))
		return
	}

	payload, err := DecodeRequest(body)
	if err != nil {
		status = h.fail(ctx, w, r, mode, err)
		return
	}
	mode = payload.Mode().MetricLabel()

	logger.FromContext(ctx, h.logger).Info("Processing create-affiliate request", map[string]interface{}{
		"mode": mode,
	})

	result, err := h.service.Execute(ctx, payload)
	if err != nil {
		status = h.fail(ctx, w, r, mode, err)
		return
	}

	h.obs.RecordSubmission(ctx, mode, "success")
	errors.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, r *http.Request, mode string, err error) int {
	stdErr := errors.Normalize(err)
	h.obs.RecordSubmission(ctx, mode, string(stdErr.Code))
	h.errors.HandleHTTPError(w, r, stdErr)
	return stdErr.StatusCode()
}
