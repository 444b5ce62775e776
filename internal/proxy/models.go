package proxy

import (
	"context"

	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/common/observability"
	"affiliate-signup/internal/common/tapfiliate"
)

// Upstream is the affiliate API surface the proxy uses. *tapfiliate.Client satisfies it.
type Upstream interface {
	CreateAffiliate(ctx context.Context, req *tapfiliate.CreateAffiliateRequest) (tapfiliate.Affiliate, error)
	GetAffiliate(ctx context.Context, affiliateID string) (tapfiliate.Affiliate, error)
	SetMetaData(ctx context.Context, affiliateID, key, value string) error
	SetParent(ctx context.Context, affiliateID, parentID string) error
	AddToProgram(ctx context.Context, programID, affiliateID string) (map[string]interface{}, error)
}

// Ledger records staged affiliates so orphans can be found later.
// *ledger.Ledger satisfies it.
type Ledger interface {
	RecordPending(ctx context.Context, affiliateID, email, parentID string) error
	MarkFinalized(ctx context.Context, affiliateID, programID string) (bool, error)
	Status(ctx context.Context, affiliateID string) (string, bool, error)
	Transition(ctx context.Context, affiliateID, from, to string) (bool, error)
}

// IdempotencyStore remembers the affiliate created for a set of credentials.
type IdempotencyStore interface {
	Lookup(ctx context.Context, email, password string) (string, bool, error)
	Remember(ctx context.Context, email, password, affiliateID string) error
}

// FailureReport describes a final submission that did not complete.
type FailureReport struct {
	Mode           string `json:"mode"`
	Email          string `json:"email,omitempty"`
	AffiliateID    string `json:"affiliate_id,omitempty"`
	Program        string `json:"program,omitempty"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// Alerter tells operators about failed final submissions.
type Alerter interface {
	SubmissionFailed(ctx context.Context, report FailureReport) error
}

// ServiceDependencies holds collaborators. Only Upstream is required.
type ServiceDependencies struct {
	Upstream      Upstream
	Ledger        Ledger
	Idempotency   IdempotencyStore
	Alerter       Alerter
	Logger        logger.Logger
	Observability *observability.Observability
}

// CreateOnlyResponse answers a Stage A request.
type CreateOnlyResponse struct {
	Success     bool                 `json:"success"`
	AffiliateID string               `json:"affiliate_id"`
	Affiliate   tapfiliate.Affiliate `json:"affiliate"`
	Reused      bool                 `json:"reused,omitempty"`
}

// UpdateFieldsResponse answers a Stage B request.
type UpdateFieldsResponse struct {
	Success     bool   `json:"success"`
	AffiliateID string `json:"affiliate_id"`
}

// EnrollResponse answers finalize and legacy requests.
type EnrollResponse struct {
	Success   bool                   `json:"success"`
	Affiliate tapfiliate.Affiliate   `json:"affiliate"`
	Program   map[string]interface{} `json:"program"`
}
