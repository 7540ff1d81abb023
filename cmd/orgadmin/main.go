package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

type runCtx struct {
	context.Context
	admin *organizations.Admin
}

type cli struct {
	CreateOrg           CreateOrgCmd           `cmd:"" help:"Create an organization with its e-mail domains."`
	AddDomain           AddDomainCmd           `cmd:"" help:"Map another e-mail domain to an organization."`
	SetSelfRegistration SetSelfRegistrationCmd `cmd:"" help:"Enable or disable self-registration."`
	AddInitiative       AddInitiativeCmd       `cmd:"" help:"Add an initiative (business unit) to an organization."`
	SetLogo             SetLogoCmd             `cmd:"" help:"Set or clear the organization logo."`
}

type CreateOrgCmd struct {
	Name             string   `arg:"" help:"Display name."`
	Slug             string   `help:"Explicit slug; derived from the name when empty."`
	Domain           []string `help:"E-mail domains owned by the organization." sep:","`
	SelfRegistration bool     `help:"Allow users of the domains to sign up on their own." name:"self-registration"`
	Logo             string   `help:"Logo object name in the logo bucket."`
}

func (c *CreateOrgCmd) Run(ctx *runCtx) error {
	org, err := ctx.admin.CreateOrganization(ctx, organizations.CreateOrganizationInput{
		Name:                  c.Name,
		Slug:                  c.Slug,
		AllowSelfRegistration: c.SelfRegistration,
		LogoPath:              c.Logo,
		Domains:               c.Domain,
	})
	if err != nil {
		return err
	}
	return printJSON(organizations.SummaryFromModel(org))
}

type AddDomainCmd struct {
	Org    string `arg:"" help:"Organization slug."`
	Domain string `arg:"" help:"Domain to map."`
}

func (c *AddDomainCmd) Run(ctx *runCtx) error {
	mapping, err := ctx.admin.AddDomain(ctx, c.Org, c.Domain)
	if err != nil {
		return err
	}
	fmt.Printf("mapped %s to %s\n", mapping.Domain, c.Org)
	return nil
}

type SetSelfRegistrationCmd struct {
	Org     string `arg:"" help:"Organization slug."`
	Enabled bool   `arg:"" help:"true or false."`
}

func (c *SetSelfRegistrationCmd) Run(ctx *runCtx) error {
	if err := ctx.admin.SetSelfRegistration(ctx, c.Org, c.Enabled); err != nil {
		return err
	}
	fmt.Printf("self-registration for %s set to %t\n", c.Org, c.Enabled)
	return nil
}

type SetLogoCmd struct {
	Org  string `arg:"" help:"Organization slug."`
	Path string `arg:"" optional:"" help:"Logo object name; omit to clear."`
}

func (c *SetLogoCmd) Run(ctx *runCtx) error {
	if err := ctx.admin.SetLogo(ctx, c.Org, c.Path); err != nil {
		return err
	}
	if c.Path == "" {
		fmt.Printf("logo cleared for %s\n", c.Org)
		return nil
	}
	fmt.Printf("logo for %s set to %s\n", c.Org, c.Path)
	return nil
}

type AddInitiativeCmd struct {
	Org         string `arg:"" help:"Organization slug."`
	Name        string `arg:"" help:"Initiative name."`
	Description string `help:"Optional description."`
}

func (c *AddInitiativeCmd) Run(ctx *runCtx) error {
	input := organizations.CreateInitiativeInput{Name: c.Name}
	if c.Description != "" {
		input.Description = &c.Description
	}
	created, err := ctx.admin.AddInitiative(ctx, c.Org, input)
	if err != nil {
		return err
	}
	return printJSON(created)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	var cmd cli
	kctx := kong.Parse(&cmd,
		kong.UsageOnError(),
		kong.Name("orgadmin"),
		kong.Description("Provision Pharo organizations, domains and initiatives."),
	)

	logg := logger.New(logger.Options{ServiceName: "orgadmin"})
	_ = godotenv.Load()

	cfg, err := config.Load()
	kctx.FatalIfErrorf(err)
	logg = logger.New(logger.Options{
		ServiceName: "orgadmin",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})

	ctx := context.Background()
	dbClient, err := db.New(ctx, cfg.DB, logg)
	kctx.FatalIfErrorf(err)
	defer dbClient.Close()

	err = kctx.Run(&runCtx{Context: ctx, admin: organizations.NewAdmin(dbClient, logg)})
	kctx.FatalIfErrorf(err)
}
