// Package wizard drives the five-page affiliate signup form and decides when
// the submission client is called.
package wizard

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"affiliate-signup/internal/common/errors"
	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/common/validation"
	"affiliate-signup/internal/models"
	"affiliate-signup/internal/submission"
)

const (
	SupplySignupURL = "https://hosts.stasher.com/signup"
	BookDemoURL     = "https://cal.com/periklis/15min"

	MinPasswordLength = 8
)

// Pages.
const (
	PageCompanyType = 1
	PageProgram     = 2
	PagePersonal    = 3
	PageCompany     = 4
	PageFinal       = 5
)

// Submitter is satisfied by *submission.Client.
type Submitter interface {
	SubmitStageA(ctx context.Context, sess *submission.Session, form *models.FormState) submission.Outcome
	SubmitStageB(ctx context.Context, sess *submission.Session, form *models.FormState) submission.Outcome
	SubmitFinal(ctx context.Context, sess *submission.Session, form *models.FormState) (*submission.AffiliateResult, error)
}

// Action tells the caller what to show next.
type Action string

const (
	ActionShowPage     Action = "show_page"
	ActionRedirect     Action = "redirect"
	ActionConfirmation Action = "confirmation"
)

// Transition is the result of a navigation call.
type Transition struct {
	Action      Action
	Page        int
	RedirectURL string
	Outcome     *submission.Outcome
	Result      *submission.AffiliateResult
	Err         error
}

type Options struct {
	Submitter Submitter
	Session   *submission.Session
	Policy    ProceedPolicy
	Logger    logger.Logger
}

type Controller struct {
	mu        sync.Mutex
	form      *models.FormState
	session   *submission.Session
	submitter Submitter
	policy    ProceedPolicy
	logger    logger.Logger
}

func New(opts Options) (*Controller, error) {
	if opts.Submitter == nil {
		return nil, fmt.Errorf("wizard requires a submitter")
	}
	c := &Controller{
		form:      models.NewFormState(),
		session:   opts.Session,
		submitter: opts.Submitter,
		policy:    opts.Policy,
		logger:    opts.Logger,
	}
	if c.session == nil {
		c.session = submission.NewSession()
	}
	if c.policy == nil {
		c.policy = AlwaysProceed{}
	}
	if c.logger == nil {
		c.logger = logger.NewNoOpLogger()
	}
	c.logger = c.logger.WithFields(map[string]interface{}{"session": c.session.ID})
	return c, nil
}

func (c *Controller) Session() *submission.Session { return c.session }

// State returns a copy of the collected form.
func (c *Controller) State() models.FormState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.form
}

// CaptureParentID reads the referral from the landing URL, preferring via.
func (c *Controller) CaptureParentID(query url.Values) {
	parent := models.CleanParentID(query.Get("via"))
	if parent == "" {
		parent = models.CleanParentID(query.Get("parent_id"))
	}
	if parent == "" {
		return
	}
	c.mu.Lock()
	c.form.ParentID = parent
	c.mu.Unlock()
}

func (c *Controller) SelectCompanyType(ct models.CompanyType) error {
	if !ct.Valid() {
		return errors.NewClientValidationError(fmt.Sprintf("Unknown company type: %s", ct))
	}
	c.mu.Lock()
	c.form.CompanyType = ct
	c.mu.Unlock()
	return nil
}

func (c *Controller) SelectProgram(p models.Program) error {
	if !p.Valid() {
		return errors.NewClientValidationError(fmt.Sprintf("Unknown program: %s", p))
	}
	c.mu.Lock()
	c.form.Program = p
	c.mu.Unlock()
	return nil
}

type Identity struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

func (c *Controller) UpdateIdentity(id Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.FirstName = id.FirstName
	c.form.LastName = id.LastName
	c.form.Email = id.Email
	c.form.Password = id.Password
}

type CompanyDetails struct {
	City               string
	Country            string
	CompanyName        string
	CompanyWebsite     string
	NumberOfProperties string
	CompanyDescription string
	CommissionType     string
}

func (c *Controller) UpdateCompany(d CompanyDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.City = d.City
	c.form.Country = d.Country
	c.form.CompanyName = d.CompanyName
	c.form.CompanyWebsite = d.CompanyWebsite
	c.form.NumberOfProperties = d.NumberOfProperties
	c.form.CompanyDescription = d.CompanyDescription
	c.form.CommissionType = d.CommissionType
}

func (c *Controller) SetAcceptTerms(accepted bool) {
	c.mu.Lock()
	c.form.AcceptTerms = accepted
	c.mu.Unlock()
}

// CanContinue reports whether the current page is complete.
func (c *Controller) CanContinue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return validatePage(c.form, c.form.CurrentPage)
}

func (c *Controller) ValidatePage(page int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return validatePage(c.form, page)
}

func validatePage(f *models.FormState, page int) bool {
	switch page {
	case PageCompanyType:
		return f.CompanyType != ""
	case PageProgram:
		return f.Program != ""
	case PagePersonal:
		return notBlank(f.FirstName, f.LastName, f.Email) &&
			validation.ValidateEmail(f.Email) &&
			len(f.Password) >= MinPasswordLength &&
			f.AcceptTerms
	case PageCompany:
		return f.CompanyType.RequiresCompanyDetails() &&
			notBlank(f.City, f.Country, f.CompanyName, f.CommissionType)
	case PageFinal:
		return true
	default:
		return false
	}
}

func notBlank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Continue validates the current page, runs the submission stage tied to it
// and moves forward. Supply partners are redirected before any submission.
func (c *Controller) Continue(ctx context.Context) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	page := c.form.CurrentPage
	if !validatePage(c.form, page) {
		return Transition{Action: ActionShowPage, Page: page},
			errors.NewClientValidationError(fmt.Sprintf("Page %d is incomplete", page))
	}

	if page == PageCompanyType && c.form.CompanyType == models.CompanyTypeSupply {
		c.logger.Info("Supply partner redirected to host signup", nil)
		return Transition{Action: ActionRedirect, Page: page, RedirectURL: SupplySignupURL}, nil
	}

	var outcome *submission.Outcome
	switch page {
	case PagePersonal:
		o := c.submitter.SubmitStageA(ctx, c.session, c.form)
		outcome = &o
	case PageCompany:
		o := c.submitter.SubmitStageB(ctx, c.session, c.form)
		outcome = &o
	case PageFinal:
		return Transition{Action: ActionShowPage, Page: page}, nil
	}

	if outcome != nil {
		if outcome.Failed() {
			c.logger.Warn("Submission stage failed", map[string]interface{}{
				"stage": outcome.Stage,
				"error": fmt.Sprint(outcome.Err),
			})
		}
		if !c.policy.AfterStage(*outcome) {
			return Transition{Action: ActionShowPage, Page: page, Outcome: outcome, Err: outcome.Err}, nil
		}
	}

	c.form.CurrentPage++
	return Transition{Action: ActionShowPage, Page: c.form.CurrentPage, Outcome: outcome}, nil
}

// Back moves to the previous page, stopping at the first.
func (c *Controller) Back() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.form.CurrentPage > models.FirstPage {
		c.form.CurrentPage--
	}
	return c.form.CurrentPage
}

// BookDemo submits with a demo request and sends the user to the booking page.
func (c *Controller) BookDemo(ctx context.Context) (Transition, error) {
	return c.finish(ctx, true)
}

// SkipDemo submits without a demo request and shows the confirmation.
func (c *Controller) SkipDemo(ctx context.Context) (Transition, error) {
	return c.finish(ctx, false)
}

func (c *Controller) finish(ctx context.Context, wantsDemo bool) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.form.CurrentPage != PageFinal {
		return Transition{Action: ActionShowPage, Page: c.form.CurrentPage},
			errors.NewClientValidationError("The final step has not been reached")
	}
	c.form.WantsDemoCall = wantsDemo

	result, err := c.submitter.SubmitFinal(ctx, c.session, c.form)
	if err != nil {
		c.logger.Error("Final submission failed", map[string]interface{}{
			"wantsDemoCall": wantsDemo,
			"error":         err.Error(),
		})
	}
	if !c.policy.AfterFinal(err) {
		return Transition{Action: ActionShowPage, Page: PageFinal, Err: err}, nil
	}

	c.session.Complete()
	t := Transition{Action: ActionConfirmation, Page: PageFinal, Result: result, Err: err}
	if wantsDemo {
		t.Action = ActionRedirect
		t.RedirectURL = BookDemoURL
	}
	return t, nil
}

// SummaryRow is one labelled line of the review page.
type SummaryRow struct {
	Label string
	Value string
}

func (c *Controller) Summary() []SummaryRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.form

	rows := []SummaryRow{
		{"Program", string(f.Program)},
		{"Company Type", f.CompanyType.Label()},
		{"Name", f.FirstName + " " + f.LastName},
		{"Email", f.Email},
		{"Company Name", f.CompanyName},
		{"Location", f.City + ", " + f.Country},
	}
	if f.CompanyWebsite != "" {
		rows = append(rows, SummaryRow{"Website", f.CompanyWebsite})
	}
	if f.NumberOfProperties != "" {
		rows = append(rows, SummaryRow{"Number of Properties", f.NumberOfProperties})
	}
	if f.CompanyDescription != "" {
		rows = append(rows, SummaryRow{"Description", f.CompanyDescription})
	}
	return rows
}
