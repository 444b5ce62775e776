// Package submission sends the signup form to the create-affiliate proxy using
// the staged protocol: create early, update, then finalize or fall back to the
// legacy one-shot request.
package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"affiliate-signup/internal/common/errors"
	commonhttp "affiliate-signup/internal/common/http"
	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/common/metrics"
	"affiliate-signup/internal/models"
	"affiliate-signup/internal/normalize"
)

const (
	MsgMissingProgram  = "Program selection is missing or invalid."
	MsgInvalidResponse = "Invalid response from server"
	MsgStageAFailed    = "Failed to create affiliate"
	MsgStageBFailed    = "Failed to update commission type"
)

// Stages reported in outcomes and metrics.
const (
	StageCreate = "create_only"
	StageUpdate = "update_fields"
	StageFinal  = "final"
)

// Status of a staged call.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome describes a Stage A or Stage B call. Failures are values; the caller
// decides whether the signup continues.
type Outcome struct {
	Stage       string
	Status      Status
	AffiliateID string
	Err         error
}

func (o Outcome) Failed() bool { return o.Status == StatusFailed }

// AffiliateResult is the proxy's answer to a final submission.
type AffiliateResult struct {
	Success   bool                   `json:"success"`
	Affiliate map[string]interface{} `json:"affiliate"`
	Program   map[string]interface{} `json:"program"`
}

type ClientOptions struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient commonhttp.Doer
	Logger     logger.Logger
}

type Client struct {
	endpoint string
	http     *commonhttp.Client
	logger   logger.Logger
	stageA   singleflight.Group
}

func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.NewConfigurationError("submission endpoint is required")
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
	return &Client{
		endpoint: opts.Endpoint,
		http:     commonhttp.NewClientWithDoer(doer, nil),
		logger:   log,
	}, nil
}

// SubmitStageA stages the affiliate once the personal-info page is complete.
// Concurrent calls for one session share a single request.
func (c *Client) SubmitStageA(ctx context.Context, sess *Session, form *models.FormState) Outcome {
	if id := sess.AffiliateID(); id != "" || sess.State() != StateInit {
		return c.record(Outcome{Stage: StageCreate, Status: StatusSkipped, AffiliateID: id})
	}

	v, _, _ := c.stageA.Do(sess.ID, func() (interface{}, error) {
		if id := sess.AffiliateID(); id != "" {
			return Outcome{Stage: StageCreate, Status: StatusSkipped, AffiliateID: id}, nil
		}
		return c.createOnly(ctx, sess, form), nil
	})
	return c.record(v.(Outcome))
}

func (c *Client) createOnly(ctx context.Context, sess *Session, form *models.FormState) Outcome {
	log := c.logger.WithFields(map[string]interface{}{"session": sess.ID, "stage": StageCreate})
	payload := BuildCreateOnly(form)
	c.logPayload(log, "Creating affiliate after personal info", payload)

	resp, err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint, payload)
	if err != nil {
		log.Warn("Stage A request failed", map[string]interface{}{"error": err.Error()})
		return failed(StageCreate, errors.NewNetworkError("affiliate-proxy", err))
	}
	if !resp.OK() {
		e := responseError(resp, MsgStageAFailed)
		log.Warn("Stage A rejected", map[string]interface{}{"status": resp.StatusCode, "error": e.Message})
		return failed(StageCreate, e)
	}

	var body struct {
		Success     bool   `json:"success"`
		AffiliateID string `json:"affiliate_id"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		log.Warn("Stage A response is not JSON", map[string]interface{}{
			"body": logger.Truncate(string(resp.Body), 1000),
		})
		return failed(StageCreate, errors.NewUpstreamProtocolError(MsgInvalidResponse, resp.StatusCode))
	}
	if !body.Success || body.AffiliateID == "" {
		log.Warn("Stage A returned no affiliate id", nil)
		return failed(StageCreate, errors.NewUpstreamProtocolError(MsgInvalidResponse, resp.StatusCode))
	}

	sess.stage(body.AffiliateID)
	log.Info("Affiliate staged", map[string]interface{}{"affiliate_id": sess.AffiliateID()})
	return Outcome{Stage: StageCreate, Status: StatusSucceeded, AffiliateID: sess.AffiliateID()}
}

// SubmitStageB sends the commission type for a staged affiliate. Nothing is
// sent for unstaged sessions or an empty commission type.
func (c *Client) SubmitStageB(ctx context.Context, sess *Session, form *models.FormState) Outcome {
	id := sess.AffiliateID()
	if sess.State() != StateStaged || strings.TrimSpace(form.CommissionType) == "" {
		return c.record(Outcome{Stage: StageUpdate, Status: StatusSkipped, AffiliateID: id})
	}
	log := c.logger.WithFields(map[string]interface{}{"session": sess.ID, "stage": StageUpdate, "affiliate_id": id})

	payload := models.UpdateFieldsPayload{AffiliateID: id, CommissionType: form.CommissionType}
	resp, err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint, payload)
	if err != nil {
		log.Warn("Stage B request failed", map[string]interface{}{"error": err.Error()})
		return c.record(failed(StageUpdate, errors.NewNetworkError("affiliate-proxy", err)))
	}
	if !resp.OK() {
		e := responseError(resp, MsgStageBFailed)
		log.Warn("Stage B rejected", map[string]interface{}{"status": resp.StatusCode, "error": e.Message})
		return c.record(failed(StageUpdate, e))
	}

	log.Info("Commission type updated", nil)
	return c.record(Outcome{Stage: StageUpdate, Status: StatusSucceeded, AffiliateID: id})
}

// SubmitFinal finalizes a staged affiliate or, when Stage A never succeeded,
// sends the legacy one-shot request.
func (c *Client) SubmitFinal(ctx context.Context, sess *Session, form *models.FormState) (*AffiliateResult, error) {
	result, err := c.submitFinal(ctx, sess, form)
	status := StatusSucceeded
	if err != nil {
		status = StatusFailed
	}
	metrics.SubmissionOutcomes.WithLabelValues(StageFinal, string(status)).Inc()
	return result, err
}

func (c *Client) submitFinal(ctx context.Context, sess *Session, form *models.FormState) (*AffiliateResult, error) {
	if sess.State() == StateDone {
		return nil, errors.NewSessionCompleteError()
	}
	programID, ok := normalize.LookupProgram(string(form.Program))
	if !ok {
		return nil, errors.NewClientValidationError(MsgMissingProgram)
	}

	var payload models.Payload
	if id := sess.AffiliateID(); id != "" {
		payload = BuildFinalize(id, programID, form)
	} else {
		payload = BuildLegacy(programID, form)
	}
	log := c.logger.WithFields(map[string]interface{}{
		"session": sess.ID,
		"stage":   StageFinal,
		"mode":    payload.Mode().MetricLabel(),
	})
	c.logPayload(log, "Submitting final signup", payload)

	resp, err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint, payload)
	if err != nil {
		log.Error("Final submission failed", map[string]interface{}{"error": err.Error()})
		return nil, errors.NewNetworkError("affiliate-proxy", err)
	}
	if !resp.OK() {
		e := responseError(resp, errors.MsgGeneric)
		log.Error("Final submission rejected", map[string]interface{}{"status": resp.StatusCode, "error": e.Message})
		return nil, e
	}

	var result AffiliateResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		log.Error("Could not parse final response", map[string]interface{}{
			"body": logger.Truncate(string(resp.Body), 1000),
		})
		return nil, errors.NewUpstreamProtocolError(MsgInvalidResponse, resp.StatusCode)
	}
	return &result, nil
}

// responseError reads a failed proxy response. HTML pages are replaced by the
// generic message; JSON bodies supply error, then message, then fallback.
func responseError(resp *commonhttp.Response, fallback string) *errors.StandardError {
	if resp.IsHTML() {
		return errors.NewUpstreamHTMLError(resp.StatusCode, logger.Truncate(string(resp.Body), 1000))
	}

	message := fallback
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		switch {
		case body.Error != "":
			message = body.Error
		case body.Message != "":
			message = body.Message
		}
	}

	e := errors.NewUpstreamBusinessError(message, resp.StatusCode)
	e.Details = logger.Truncate(string(resp.Body), 1000)
	return e
}

func failed(stage string, err error) Outcome {
	return Outcome{Stage: stage, Status: StatusFailed, Err: err}
}

func (c *Client) record(o Outcome) Outcome {
	metrics.SubmissionOutcomes.WithLabelValues(o.Stage, string(o.Status)).Inc()
	return o
}

func (c *Client) logPayload(log logger.Logger, msg string, payload models.Payload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Warn("Could not encode payload for logging", map[string]interface{}{"error": err.Error()})
		return
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return
	}
	log.Debug(msg, map[string]interface{}{"payload": logger.Mask(fields)})
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s %s: %v", o.Stage, o.Status, o.Err)
	}
	return fmt.Sprintf("%s %s", o.Stage, o.Status)
}
