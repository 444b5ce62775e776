// Package tapfiliate is a small client for the Tapfiliate REST API.
package tapfiliate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	stderr "affiliate-signup/internal/common/errors"
	commonhttp "affiliate-signup/internal/common/http"
	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/common/metrics"
	"affiliate-signup/internal/common/observability"
	"affiliate-signup/internal/models"
)

const (
	DefaultBaseURL = "https://api.tapfiliate.com/1.6/"
	serviceName    = "tapfiliate"
)

// Affiliate is the upstream affiliate record, passed through to callers untouched.
type Affiliate map[string]interface{}

// ID returns the record id, accepting string or numeric encodings.
func (a Affiliate) ID() string {
	switch v := a["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// CreateAffiliateRequest is the body of POST affiliates/.
type CreateAffiliateRequest struct {
	FirstName          string          `json:"firstname,omitempty"`
	LastName           string          `json:"lastname,omitempty"`
	Email              string          `json:"email,omitempty"`
	Password           string          `json:"password,omitempty"`
	Address            *models.Address `json:"address,omitempty"`
	Company            *models.Company `json:"company,omitempty"`
	CompanyDescription string          `json:"company_description,omitempty"`
}

type affiliateRef struct {
	ID string `json:"id"`
}

type enrollmentRequest struct {
	Affiliate affiliateRef `json:"affiliate"`
	// Approved is always null so new affiliates land in Pending.
	Approved *bool `json:"approved"`
}

type parentRequest struct {
	Affiliate affiliateRef `json:"affiliate"`
}

type metaDataRequest struct {
	Value string `json:"value"`
}

type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	HTTPClient    commonhttp.Doer
	Logger        logger.Logger
	Observability *observability.Observability
}

type Client struct {
	baseURL string
	http    *commonhttp.Client
	logger  logger.Logger
	tracer  trace.Tracer
	obs     *observability.Observability
}

func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, stderr.NewConfigurationError("tapfiliate api key is required")
	}

	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	doer := opts.HTTPClient
	if doer == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	tracer := otel.Tracer("affiliate-signup/tapfiliate")
	if opts.Observability != nil {
		tracer = opts.Observability.Tracer()
	}

	return &Client{
		baseURL: base,
		http:    commonhttp.NewClientWithDoer(doer, map[string]string{"X-Api-Key": opts.APIKey}),
		logger:  log,
		tracer:  tracer,
		obs:     opts.Observability,
	}, nil
}

// CreateAffiliate creates the affiliate record. A 2xx response without an id is
// reported as an upstream protocol error.
func (c *Client) CreateAffiliate(ctx context.Context, req *CreateAffiliateRequest) (Affiliate, error) {
	c.log(ctx).Info("Creating affiliate", map[string]interface{}{
		"email":   req.Email,
		"country": countryOf(req),
	})

	resp, err := c.call(ctx, "create_affiliate", http.MethodPost, "affiliates/", req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, c.fail(ctx, "create_affiliate", resp, MsgCreateFailed)
	}

	obj, decodeErr := resp.DecodeObject()
	affiliate := Affiliate(obj)
	if decodeErr != nil || affiliate.ID() == "" {
		c.log(ctx).Error("Tapfiliate create response has no affiliate id", map[string]interface{}{
			"status": resp.StatusCode,
			"body":   logger.Truncate(string(resp.Body), maxLoggedBodySize),
		})
		return nil, stderr.NewUpstreamProtocolError(MsgInvalidCreate, resp.StatusCode)
	}
	return affiliate, nil
}

func (c *Client) GetAffiliate(ctx context.Context, affiliateID string) (Affiliate, error) {
	resp, err := c.call(ctx, "get_affiliate", http.MethodGet, "affiliates/"+url.PathEscape(affiliateID)+"/", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, c.fail(ctx, "get_affiliate", resp, MsgFetchFailed)
	}
	obj, err := resp.DecodeObject()
	if err != nil {
		return nil, stderr.NewUpstreamProtocolError(MsgFetchFailed, resp.StatusCode)
	}
	return Affiliate(obj), nil
}

// SetMetaData writes one custom field on the affiliate.
func (c *Client) SetMetaData(ctx context.Context, affiliateID, key, value string) error {
	path := fmt.Sprintf("affiliates/%s/meta-data/%s/", url.PathEscape(affiliateID), url.PathEscape(key))
	resp, err := c.call(ctx, "set_meta_data", http.MethodPut, path, metaDataRequest{Value: value})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return c.fail(ctx, "set_meta_data", resp, MsgUpdateFailed)
	}
	return nil
}

// SetParent links the affiliate under a referring affiliate.
func (c *Client) SetParent(ctx context.Context, affiliateID, parentID string) error {
	path := fmt.Sprintf("affiliates/%s/parent/", url.PathEscape(affiliateID))
	resp, err := c.call(ctx, "set_parent", http.MethodPost, path, parentRequest{Affiliate: affiliateRef{ID: parentID}})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return c.fail(ctx, "set_parent", resp, MsgParentFailed)
	}
	return nil
}

// AddToProgram enrolls the affiliate as pending without a welcome e-mail.
// A 2xx body that is not a JSON object is tolerated.
func (c *Client) AddToProgram(ctx context.Context, programID, affiliateID string) (map[string]interface{}, error) {
	path := fmt.Sprintf("programs/%s/affiliates/?send_welcome_email=false", url.PathEscape(programID))
	body := enrollmentRequest{Affiliate: affiliateRef{ID: affiliateID}}

	resp, err := c.call(ctx, "enroll", http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, c.fail(ctx, "enroll", resp, MsgEnrollFailed)
	}

	program, decodeErr := resp.DecodeObject()
	if decodeErr != nil {
		c.log(ctx).Warn("Enrollment response is not a JSON object", map[string]interface{}{
			"status": resp.StatusCode,
		})
		program = map[string]interface{}{"program_id": programID}
	}
	return program, nil
}

// DeleteAffiliate removes the affiliate. A 404 counts as already deleted.
func (c *Client) DeleteAffiliate(ctx context.Context, affiliateID string) error {
	resp, err := c.call(ctx, "delete_affiliate", http.MethodDelete, "affiliates/"+url.PathEscape(affiliateID)+"/", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound || resp.OK() {
		return nil
	}
	return c.fail(ctx, "delete_affiliate", resp, MsgDeleteFailed)
}

func (c *Client) call(ctx context.Context, operation, method, path string, payload interface{}) (*commonhttp.Response, error) {
	ctx, span := c.tracer.Start(ctx, "tapfiliate."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("tapfiliate.operation", operation),
	)

	start := time.Now()
	resp, err := c.http.DoJSON(ctx, method, c.baseURL+path, payload)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.record(ctx, operation, "network_error", elapsed)
		c.log(ctx).Error("Tapfiliate request failed", map[string]interface{}{
			"operation": operation,
			"error":     err.Error(),
		})
		return nil, stderr.NewNetworkError(serviceName, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	outcome := "ok"
	if !resp.OK() {
		outcome = "error"
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
	}
	c.record(ctx, operation, outcome, elapsed)

	c.log(ctx).Debug("Tapfiliate response", map[string]interface{}{
		"operation":   operation,
		"status":      resp.StatusCode,
		"duration_ms": elapsed.Milliseconds(),
	})
	return resp, nil
}

func (c *Client) fail(ctx context.Context, operation string, resp *commonhttp.Response, defaultMessage string) error {
	e := Classify(resp, defaultMessage)
	c.log(ctx).Error("Tapfiliate API error response", map[string]interface{}{
		"operation":    operation,
		"status":       resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"code":         string(e.Code),
		"body":         e.Details,
	})
	return e
}

func (c *Client) record(ctx context.Context, operation, outcome string, elapsed time.Duration) {
	metrics.UpstreamCallsTotal.WithLabelValues(operation, outcome).Inc()
	c.obs.RecordUpstreamDuration(ctx, operation, elapsed, outcome)
}

func (c *Client) log(ctx context.Context) logger.Logger {
	return logger.FromContext(ctx, c.logger)
}

func countryOf(req *CreateAffiliateRequest) string {
	if req.Address == nil {
		return ""
	}
	return req.Address.Country.Code
}
