package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v2"

	"github.com/skimmerhq/skimmer/rules"
	"github.com/skimmerhq/skimmer/store"
)

var seedCmd = &cli.Command{
	Name:  "seed",
	Usage: "create starter rules for a company",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "company-id",
			Value:   "default_company",
			EnvVars: []string{"SKIMMER_SEED_COMPANY"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

		st, err := store.NewStore(cctx.String("database-url"), logger)
		if err != nil {
			return fmt.Errorf("setting up database: %w", err)
		}

		companyID := cctx.String("company-id")
		for _, r := range starterRules(companyID) {
			if err := rules.ValidateRule(&r); err != nil {
				return fmt.Errorf("invalid starter rule %q: %w", r.Name, err)
			}
			if err := st.CreateRule(ctx, &r); err != nil {
				return fmt.Errorf("creating rule %q: %w", r.Name, err)
			}
			logger.Info("created rule", "id", r.ID, "name", r.Name)
		}
		return nil
	},
}

func starterRules(companyID string) []rules.Rule {
	allScope := rules.Scope{Type: rules.ScopeAll}
	mustCfg := func(t rules.ConditionType, raw string) rules.ConditionConfig {
		cfg, err := rules.ParseConditionConfig(t, []byte(raw))
		if err != nil {
			panic(err)
		}
		return cfg
	}

	return []rules.Rule{
		{
			CompanyID:   companyID,
			Name:        "Block Profanity",
			Description: "Automatically flag messages containing profanity",
			Enabled:     true,
			Priority:    100,
			Severity:    rules.SeverityHigh,
			Mode:        rules.ModeEnforce,
			Scope:       allScope,
			Conditions: []rules.Condition{
				{
					Type:   rules.ConditionProfanity,
					Config: mustCfg(rules.ConditionProfanity, `{"words":["badword","spam","inappropriate"]}`),
				},
			},
			Actions: []rules.Action{
				{Type: rules.ActionFlagReview, Priority: 0},
				{Type: rules.ActionAutoDelete, Priority: 1},
			},
		},
		{
			CompanyID:   companyID,
			Name:        "Block Suspicious Links",
			Description: "Block messages containing links to suspicious domains",
			Enabled:     true,
			Priority:    90,
			Severity:    rules.SeverityMedium,
			Mode:        rules.ModeEnforce,
			Scope:       allScope,
			Conditions: []rules.Condition{
				{
					Type:   rules.ConditionDomainBlock,
					Config: mustCfg(rules.ConditionDomainBlock, `{"domains":["spam.com","malicious-site.com"]}`),
				},
			},
			Actions: []rules.Action{
				{Type: rules.ActionFlagReview, Priority: 0},
				{Type: rules.ActionAutoDelete, Priority: 1},
			},
		},
		{
			CompanyID:   companyID,
			Name:        "Detect Spam Patterns",
			Description: "Flag messages with spam-like patterns (repeated text, excessive caps, emoji spam)",
			Enabled:     true,
			Priority:    80,
			Severity:    rules.SeverityMedium,
			Mode:        rules.ModeEnforce,
			Scope:       allScope,
			Conditions: []rules.Condition{
				{
					Type:     rules.ConditionRepeatedText,
					Config:   mustCfg(rules.ConditionRepeatedText, `{}`),
					Priority: 0,
				},
				{
					Type:     rules.ConditionExcessiveCaps,
					Config:   mustCfg(rules.ConditionExcessiveCaps, `{"threshold":0.7}`),
					Priority: 1,
				},
				{
					Type:     rules.ConditionEmojiSpam,
					Config:   mustCfg(rules.ConditionEmojiSpam, `{"threshold":10}`),
					Priority: 2,
				},
			},
			Actions: []rules.Action{
				{Type: rules.ActionFlagReview, Priority: 0},
			},
		},
	}
}
