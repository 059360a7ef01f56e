package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kjtimes/internal/app"
	"kjtimes/internal/auth"
	"kjtimes/internal/logger"
	"kjtimes/internal/pressrelease"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the bundled MySQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			n, err := app.Migrate(cmd.Context(), e.db)
			if err != nil {
				return err
			}
			e.log.Info("schema applied", logger.Int("statements", n))
			return nil
		},
	}
}

func crawlCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Collect new press releases from the Gwangju city hall board",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			src := pressrelease.GwangjuCityHall
			crawler := pressrelease.NewCrawler(pressrelease.NewStore(e.db), e.log)
			n, err := crawler.Crawl(cmd.Context(), src)
			if err != nil {
				return fmt.Errorf("crawl %s: %w", src.Name, err)
			}
			e.log.Info("press releases collected", logger.String("source", src.Name), logger.Int("count", n))
			return nil
		},
	}
}

func feedCommand() *cobra.Command {
	var src pressrelease.FeedSource
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Collect press releases from an RSS or Atom feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if src.URL == "" {
				return errors.New("--url is required")
			}
			if src.Name == "" {
				src.Name = src.URL
			}
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			crawler := pressrelease.NewCrawler(pressrelease.NewStore(e.db), e.log)
			n, err := crawler.CollectFeed(cmd.Context(), src)
			if err != nil {
				return fmt.Errorf("collect feed %s: %w", src.URL, err)
			}
			e.log.Info("feed collected", logger.String("source", src.Name), logger.Int("count", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&src.URL, "url", "", "feed URL")
	cmd.Flags().StringVar(&src.Name, "name", "", "source name shown to editors")
	cmd.Flags().StringVar(&src.OriginPrefix, "prefix", "FEED", "origin id prefix for deduplication")
	return cmd
}

func processCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Rewrite collected press releases into article drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			if e.cfg.LLM.Endpoint == "" {
				return errors.New("LLM endpoint is not configured")
			}
			rewriter := pressrelease.NewRewriter(pressrelease.RewriterConfig{
				Endpoint: e.cfg.LLM.Endpoint,
				Model:    e.cfg.LLM.Model,
				APIKey:   e.cfg.LLM.APIKey,
			}, nil)
			proc := pressrelease.NewProcessor(pressrelease.NewStore(e.db), rewriter, e.log)
			n, err := proc.Run(cmd.Context())
			if err != nil {
				return err
			}
			e.log.Info("press releases processed", logger.Int("count", n))
			return nil
		},
	}
}

func userCommand() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage CMS accounts",
	}

	var email, name, role, password string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a CMS account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			p, err := auth.NewStore(e.db).Create(cmd.Context(), email, name, role, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", p.Email, p.Role, p.ID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "login email")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&role, "role", "reporter", "role: admin, editor or reporter")
	add.Flags().StringVar(&password, "password", "", "initial password")

	user.AddCommand(add)
	return user
}
