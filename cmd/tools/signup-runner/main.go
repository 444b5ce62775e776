// cmd/tools/signup-runner/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/models"
	"affiliate-signup/internal/submission"
	"affiliate-signup/internal/wizard"
)

func main() {
	app := &cli.App{
		Name:  "signup-runner",
		Usage: "Walk through the affiliate signup wizard against a running proxy",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "proxy-url", Value: "http://localhost:8080/create-affiliate", EnvVars: []string{"PROXY_URL"}, Usage: "Create-affiliate endpoint"},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "Per-request timeout"},
			&cli.StringFlag{Name: "landing-query", Usage: "Query string of the landing URL, e.g. via=abc123"},
			&cli.StringFlag{Name: "company-type", Value: string(models.CompanyTypeVacationRental)},
			&cli.StringFlag{Name: "program", Value: string(models.ProgramGBP), Usage: "USD, EUR, GBP or AUD"},
			&cli.StringFlag{Name: "first-name", Required: true},
			&cli.StringFlag{Name: "last-name", Required: true},
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"SIGNUP_PASSWORD"}},
			&cli.StringFlag{Name: "city"},
			&cli.StringFlag{Name: "country"},
			&cli.StringFlag{Name: "company-name"},
			&cli.StringFlag{Name: "website"},
			&cli.StringFlag{Name: "properties", Usage: "Number of properties"},
			&cli.StringFlag{Name: "description"},
			&cli.StringFlag{Name: "commission-type", Value: "cpa"},
			&cli.BoolFlag{Name: "book-demo", Usage: "Finish with the book-a-demo button"},
			&cli.BoolFlag{Name: "strict", Usage: "Stay on the last page when the final submission fails"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "signup-runner: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := logger.NewStructured(c.String("log-level"), "console")

	client, err := submission.NewClient(submission.ClientOptions{
		Endpoint: c.String("proxy-url"),
		Timeout:  c.Duration("timeout"),
		Logger:   log,
	})
	if err != nil {
		return err
	}

	var policy wizard.ProceedPolicy = wizard.AlwaysProceed{}
	if c.Bool("strict") {
		policy = wizard.Strict{}
	}

	ctrl, err := wizard.New(wizard.Options{Submitter: client, Policy: policy, Logger: log})
	if err != nil {
		return err
	}

	if q := c.String("landing-query"); q != "" {
		values, err := url.ParseQuery(q)
		if err != nil {
			return fmt.Errorf("parse landing query: %w", err)
		}
		ctrl.CaptureParentID(values)
	}

	ctx := c.Context
	out := c.App.Writer

	if err := ctrl.SelectCompanyType(models.CompanyType(c.String("company-type"))); err != nil {
		return err
	}
	t, err := advance(ctx, ctrl)
	if err != nil {
		return err
	}
	if t.Action == wizard.ActionRedirect {
		fmt.Fprintf(out, "redirect: %s\n", t.RedirectURL)
		return nil
	}

	if err := ctrl.SelectProgram(models.Program(c.String("program"))); err != nil {
		return err
	}
	if _, err := advance(ctx, ctrl); err != nil {
		return err
	}

	ctrl.UpdateIdentity(wizard.Identity{
		FirstName: c.String("first-name"),
		LastName:  c.String("last-name"),
		Email:     c.String("email"),
		Password:  c.String("password"),
	})
	ctrl.SetAcceptTerms(true)
	if t, err = advance(ctx, ctrl); err != nil {
		return err
	}
	report(out, t)

	ctrl.UpdateCompany(wizard.CompanyDetails{
		City:               c.String("city"),
		Country:            c.String("country"),
		CompanyName:        c.String("company-name"),
		CompanyWebsite:     c.String("website"),
		NumberOfProperties: c.String("properties"),
		CompanyDescription: c.String("description"),
		CommissionType:     c.String("commission-type"),
	})
	if t, err = advance(ctx, ctrl); err != nil {
		return err
	}
	report(out, t)

	for _, row := range ctrl.Summary() {
		fmt.Fprintf(out, "  %-22s %s\n", row.Label+":", row.Value)
	}

	if c.Bool("book-demo") {
		t, err = ctrl.BookDemo(ctx)
	} else {
		t, err = ctrl.SkipDemo(ctx)
	}
	if err != nil {
		return err
	}

	switch {
	case t.Err != nil && t.Action == wizard.ActionShowPage:
		return fmt.Errorf("final submission failed: %w", t.Err)
	case t.Err != nil:
		fmt.Fprintf(out, "final submission failed (ignored): %v\n", t.Err)
	case t.Result != nil:
		fmt.Fprintf(out, "affiliate: %v\n", t.Result.Affiliate["id"])
	}
	if t.Action == wizard.ActionRedirect {
		fmt.Fprintf(out, "redirect: %s\n", t.RedirectURL)
	} else {
		fmt.Fprintln(out, "signup complete")
	}
	return nil
}

func advance(ctx context.Context, ctrl *wizard.Controller) (wizard.Transition, error) {
	t, err := ctrl.Continue(ctx)
	if err != nil {
		return t, err
	}
	if t.Err != nil {
		return t, fmt.Errorf("page %d: %w", t.Page, t.Err)
	}
	return t, nil
}

func report(w io.Writer, t wizard.Transition) {
	if t.Outcome != nil {
		fmt.Fprintf(w, "%s\n", t.Outcome)
	}
}
