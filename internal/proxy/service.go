package proxy

import (
	"context"
	"strconv"
	"strings"

	"affiliate-signup/internal/common/errors"
	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/common/observability"
	"affiliate-signup/internal/common/tapfiliate"
	"affiliate-signup/internal/ledger"
	"affiliate-signup/internal/models"
	"affiliate-signup/internal/normalize"
)

// Metadata keys written on finalize.
const (
	MetaWebsite            = "website"
	MetaCommissionType     = "commission_type"
	MetaCompanyType        = "company_type"
	MetaCity               = "city"
	MetaCountry            = "country"
	MetaCompanyName        = "company_name"
	MetaCompanyDescription = "company_description"
	MetaWantsDemoCall      = "wants_demo_call"
)

type Service struct {
	config      *Config
	logger      logger.Logger
	upstream    Upstream
	ledger      Ledger
	idempotency IdempotencyStore
	alerter     Alerter
	obs         *observability.Observability
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{
		config:      config,
		logger:      log,
		upstream:    deps.Upstream,
		ledger:      deps.Ledger,
		idempotency: deps.Idempotency,
		alerter:     deps.Alerter,
		obs:         deps.Observability,
	}
}

// Execute dispatches on the payload variant.
func (s *Service) Execute(ctx context.Context, payload models.Payload) (interface{}, error) {
	switch p := payload.(type) {
	case models.CreateOnlyPayload:
		return s.createOnly(ctx, p)
	case models.UpdateFieldsPayload:
		return s.updateFields(ctx, p)
	case models.FinalizePayload:
		return s.finalize(ctx, p)
	case models.LegacyPayload:
		return s.legacy(ctx, p)
	default:
		mode := ""
		if payload != nil {
			mode = string(payload.Mode())
		}
		return nil, errors.NewUnknownModeError(mode)
	}
}

// ==========================
// Stage A: create only
// ==========================

func (s *Service) createOnly(ctx context.Context, p models.CreateOnlyPayload) (*CreateOnlyResponse, error) {
	if err := validateCreateOnly(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).WithFields(map[string]interface{}{"mode": string(models.ModeCreateOnly)})

	if existing, ok := s.reusableAffiliate(ctx, log, p.Email, p.Password); ok {
		log.Info("Reusing staged affiliate for credentials", map[string]interface{}{"affiliate_id": existing})
		return &CreateOnlyResponse{
			Success:     true,
			AffiliateID: existing,
			Affiliate:   tapfiliate.Affiliate{"id": existing},
			Reused:      true,
		}, nil
	}

	req := buildCreateRequest(p.FirstName, p.LastName, p.Email, p.Password,
		orPlaceholder(p.City, models.PlaceholderUpper),
		orPlaceholder(p.Country, models.PlaceholderRegion),
		orPlaceholder(p.Company, models.PlaceholderUpper), "")
	s.logPayload(log, req, "")

	affiliate, err := s.upstream.CreateAffiliate(ctx, req)
	if err != nil {
		return nil, err
	}
	id := affiliate.ID()

	if s.idempotency != nil {
		if err := s.idempotency.Remember(ctx, p.Email, p.Password, id); err != nil {
			log.Warn("Failed to remember staged affiliate", map[string]interface{}{"affiliate_id": id, "error": err.Error()})
		}
	}
	if s.ledger != nil {
		if err := s.ledger.RecordPending(ctx, id, p.Email, models.CleanParentID(p.ParentID)); err != nil {
			log.Warn("Failed to record pending affiliate", map[string]interface{}{"affiliate_id": id, "error": err.Error()})
		}
	}
	s.linkParent(ctx, log, id, p.ParentID)

	log.Info("Staged affiliate created", map[string]interface{}{"affiliate_id": id})
	return &CreateOnlyResponse{Success: true, AffiliateID: id, Affiliate: affiliate}, nil
}

// ==========================
// Stage B: update fields
// ==========================

func (s *Service) updateFields(ctx context.Context, p models.UpdateFieldsPayload) (*UpdateFieldsResponse, error) {
	if err := validateUpdateFields(p); err != nil {
		return nil, err
	}

	if err := s.upstream.SetMetaData(ctx, p.AffiliateID, MetaCommissionType, p.CommissionType); err != nil {
		return nil, err
	}

	s.log(ctx).Info("Affiliate custom fields updated", map[string]interface{}{
		"mode":         string(models.ModeUpdateFields),
		"affiliate_id": p.AffiliateID,
	})
	return &UpdateFieldsResponse{Success: true, AffiliateID: p.AffiliateID}, nil
}

// ==========================
// Finalize staged affiliate
// ==========================

func (s *Service) finalize(ctx context.Context, p models.FinalizePayload) (*EnrollResponse, error) {
	programID, err := resolveProgram(p.Program)
	if err != nil {
		return nil, err
	}
	if err := validateFinalize(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).WithFields(map[string]interface{}{
		"mode":         string(models.ModeFinalize),
		"affiliate_id": p.AffiliateID,
		"program":      programID,
	})

	release, err := s.claimForFinalize(ctx, log, p.AffiliateID, programID)
	if err != nil {
		return nil, err
	}

	website := ""
	if p.Metadata != nil {
		website = p.Metadata.Website
	}
	country := p.Address.Country.Code
	if country != "" {
		country = normalize.Country(country)
	}
	s.setMetaData(ctx, log, p.AffiliateID, []metaField{
		{MetaWebsite, website},
		{MetaCommissionType, p.CommissionType},
		{MetaCompanyType, p.CompanyType},
		{MetaCity, placeholderToEmpty(p.Address.City)},
		{MetaCountry, country},
		{MetaCompanyName, placeholderToEmpty(p.Company.Name)},
		{MetaCompanyDescription, p.Company.Description},
		{MetaWantsDemoCall, strconv.FormatBool(p.WantsDemoCall)},
	})
	s.linkParent(ctx, log, p.AffiliateID, p.ParentID)

	program, err := s.upstream.AddToProgram(ctx, programID, p.AffiliateID)
	if err != nil {
		release()
		s.alert(ctx, FailureReport{Mode: models.ModeFinalize.MetricLabel(), AffiliateID: p.AffiliateID, Program: programID}, err)
		return nil, err
	}

	affiliate, err := s.upstream.GetAffiliate(ctx, p.AffiliateID)
	if err != nil {
		log.Warn("Could not fetch finalized affiliate, returning id only", map[string]interface{}{"error": err.Error()})
		affiliate = tapfiliate.Affiliate{"id": p.AffiliateID}
	}

	log.Info("Affiliate finalized and enrolled", nil)
	return &EnrollResponse{Success: true, Affiliate: affiliate, Program: program}, nil
}

// ==========================
// Legacy one-shot
// ==========================

func (s *Service) legacy(ctx context.Context, p models.LegacyPayload) (*EnrollResponse, error) {
	programID, err := resolveProgram(p.Program)
	if err != nil {
		return nil, err
	}
	if err := validateLegacy(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).WithFields(map[string]interface{}{
		"mode":    models.ModeLegacy.MetricLabel(),
		"program": programID,
	})

	req := buildCreateRequest(p.FirstName, p.LastName, p.Email, p.Password, p.City, p.Country, p.Company, p.CompanyDescription)
	s.logPayload(log, req, programID)

	affiliate, err := s.upstream.CreateAffiliate(ctx, req)
	if err != nil {
		s.alert(ctx, FailureReport{Mode: models.ModeLegacy.MetricLabel(), Email: p.Email, Program: programID}, err)
		return nil, err
	}
	id := affiliate.ID()

	if p.Metadata != nil && p.Metadata.Website != "" {
		s.setMetaData(ctx, log, id, []metaField{{MetaWebsite, p.Metadata.Website}})
	}
	s.linkParent(ctx, log, id, p.ParentID)

	program, err := s.upstream.AddToProgram(ctx, programID, id)
	if err != nil {
		s.alert(ctx, FailureReport{Mode: models.ModeLegacy.MetricLabel(), Email: p.Email, AffiliateID: id, Program: programID}, err)
		return nil, err
	}

	log.Info("Affiliate created and enrolled", map[string]interface{}{"affiliate_id": id})
	return &EnrollResponse{Success: true, Affiliate: affiliate, Program: program}, nil
}

// ==========================
// Helpers
// ==========================

// reusableAffiliate returns the affiliate an earlier Stage A staged for the
// same credentials, provided the ledger still holds it as pending.
func (s *Service) reusableAffiliate(ctx context.Context, log logger.Logger, email, password string) (string, bool) {
	if s.idempotency == nil || s.ledger == nil {
		return "", false
	}
	existing, found, err := s.idempotency.Lookup(ctx, email, password)
	if err != nil {
		log.Warn("Idempotency lookup failed, creating anyway", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	if !found {
		return "", false
	}

	status, tracked, err := s.ledger.Status(ctx, existing)
	if err != nil {
		log.Warn("Ledger status lookup failed, creating anyway", map[string]interface{}{"affiliate_id": existing, "error": err.Error()})
		return "", false
	}
	if !tracked || status != ledger.StatusPending {
		log.Info("Staged affiliate is no longer pending, creating a new one", map[string]interface{}{
			"affiliate_id": existing,
			"status":       status,
		})
		return "", false
	}
	return existing, true
}

// claimForFinalize moves the ledger entry from pending to finalized before
// enrolment, so the reaper cannot delete an affiliate mid-finalize. Entries
// the reaper already claimed are refused. The returned release undoes the
// claim when enrolment fails. Ledger outages never block a signup.
func (s *Service) claimForFinalize(ctx context.Context, log logger.Logger, affiliateID, programID string) (func(), error) {
	noop := func() {}
	if s.ledger == nil {
		return noop, nil
	}

	claimed, err := s.ledger.MarkFinalized(ctx, affiliateID, programID)
	if err != nil {
		log.Warn("Failed to mark affiliate finalized", map[string]interface{}{"error": err.Error()})
		return noop, nil
	}
	if claimed {
		return func() {
			if _, err := s.ledger.Transition(ctx, affiliateID, ledger.StatusFinalized, ledger.StatusPending); err != nil {
				log.Warn("Failed to release finalize claim", map[string]interface{}{"error": err.Error()})
			}
		}, nil
	}

	status, found, err := s.ledger.Status(ctx, affiliateID)
	if err != nil {
		log.Warn("Ledger status lookup failed", map[string]interface{}{"error": err.Error()})
		return noop, nil
	}
	switch {
	case !found, status == ledger.StatusFinalized:
		return noop, nil
	case status == ledger.StatusFlagged, status == ledger.StatusDeleted:
		log.Warn("Refusing to finalize reaped affiliate", map[string]interface{}{"status": status})
		return nil, errors.NewAffiliateReapedError(affiliateID, status)
	default:
		return noop, nil
	}
}

type metaField struct {
	key   string
	value string
}

// setMetaData writes each non-empty field; failures are logged only.
func (s *Service) setMetaData(ctx context.Context, log logger.Logger, affiliateID string, fields []metaField) {
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := s.upstream.SetMetaData(ctx, affiliateID, f.key, f.value); err != nil {
			log.Warn("Failed to set affiliate meta data", map[string]interface{}{
				"key":   f.key,
				"error": err.Error(),
			})
		}
	}
}

func (s *Service) linkParent(ctx context.Context, log logger.Logger, affiliateID, rawParent string) {
	parentID := models.CleanParentID(rawParent)
	if parentID == "" || parentID == affiliateID {
		return
	}
	if err := s.upstream.SetParent(ctx, affiliateID, parentID); err != nil {
		log.Warn("Failed to link parent affiliate", map[string]interface{}{
			"parent_id": parentID,
			"error":     err.Error(),
		})
	}
}

func (s *Service) alert(ctx context.Context, report FailureReport, cause error) {
	std := errors.Normalize(cause)
	if s.alerter == nil || std.Code == errors.ErrCodeClientValidation {
		return
	}
	report.Code = string(std.Code)
	report.Message = std.Message
	report.UpstreamStatus = std.UpstreamStatus
	if err := s.alerter.SubmissionFailed(ctx, report); err != nil {
		s.log(ctx).Warn("Failed to send submission alert", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Service) logPayload(log logger.Logger, req *tapfiliate.CreateAffiliateRequest, programID string) {
	fields := map[string]interface{}{
		"firstname": req.FirstName,
		"lastname":  req.LastName,
		"email":     req.Email,
		"password":  req.Password,
		"address":   req.Address,
		"company":   req.Company,
	}
	if programID != "" {
		fields["program_id"] = programID
	}
	log.Debug("Tapfiliate payload (password masked)", logger.Mask(fields))
}

func (s *Service) log(ctx context.Context) logger.Logger {
	return logger.FromContext(ctx, s.logger)
}

// resolveProgram maps a currency code to a program id; unknown values pass through.
func resolveProgram(program string) (string, error) {
	id := strings.TrimSpace(normalize.Program(program))
	if id == "" {
		return "", errors.NewClientValidationError(errors.MsgInvalidProgram)
	}
	return id, nil
}

func buildCreateRequest(first, last, email, password, city, country, company, description string) *tapfiliate.CreateAffiliateRequest {
	return &tapfiliate.CreateAffiliateRequest{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Password:  password,
		Address: &models.Address{
			Address:    models.PlaceholderLower,
			PostalCode: models.PlaceholderLower,
			City:       orPlaceholder(city, models.PlaceholderLower),
			Country:    models.CountryRef{Code: normalize.Country(country)},
		},
		Company:            &models.Company{Name: orPlaceholder(company, models.PlaceholderLower)},
		CompanyDescription: description,
	}
}

func orPlaceholder(v, placeholder string) string {
	if v == "" {
		return placeholder
	}
	return v
}

// placeholderToEmpty hides the "n/a" stand-ins so they are not stored as real values.
func placeholderToEmpty(v string) string {
	if strings.EqualFold(v, models.PlaceholderLower) {
		return ""
	}
	return v
}
