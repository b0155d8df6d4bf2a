// Copyright (c) 2025 Berik Ashimov

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"routeplan/internal/design"
	"routeplan/internal/render"
	"routeplan/internal/store"
)

func mustEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

type rootOptions struct {
	dbPath    string
	logLevel  string
	logFormat string

	log *logrus.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "routeplan",
		Short:         "Allocate IPv4 blocks and synthesize static routes for a multi-router design",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.log = log
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.dbPath, "db", mustEnv("DB_PATH", "./routeplan.sqlite"), "sqlite database path (DB_PATH)")
	flags.StringVar(&opts.logLevel, "log-level", mustEnv("LOG_LEVEL", "info"), "log level (LOG_LEVEL)")
	flags.StringVar(&opts.logFormat, "log-format", mustEnv("LOG_FORMAT", "text"), "log format, json or text (LOG_FORMAT)")

	root.AddCommand(newPlanCmd(opts), newServeCmd(opts), newMigrateCmd(opts), newTemplatesCmd())
	return root
}

func (o *rootOptions) openStore() (*store.Store, error) {
	st, err := store.Open(o.dbPath, store.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

type planOptions struct {
	file      string
	output    string
	router    int
	template  string
	save      bool
	sshUser   string
	sshPass   string
	sshDomain string
}

func newPlanCmd(root *rootOptions) *cobra.Command {
	opts := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build a plan from a design file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, root, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "design file (.yaml or .json)")
	f.StringVarP(&opts.output, "output", "o", "text", "output format: text, yaml or json")
	f.IntVar(&opts.router, "router", 0, "print the configuration of this router instead of the plan")
	f.StringVar(&opts.template, "template", render.DefaultTemplate, "configuration template")
	f.BoolVar(&opts.save, "save", false, "store the plan in the database")
	f.StringVar(&opts.sshUser, "ssh-user", "", "add an SSH block for this user to router configurations")
	f.StringVar(&opts.sshPass, "ssh-secret", "", "secret of the SSH user")
	f.StringVar(&opts.sshDomain, "ssh-domain", "", "ip domain-name of the SSH block")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runPlan(cmd *cobra.Command, root *rootOptions, opts *planOptions) error {
	d, err := design.Load(opts.file)
	if err != nil {
		return err
	}
	plan, err := design.Build(d, design.WithLogger(root.log))
	if err != nil {
		return err
	}
	if opts.save {
		st, err := root.openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		raw, err := os.ReadFile(opts.file)
		if err != nil {
			return err
		}
		id, err := st.SavePlan(plan, store.Source{Body: raw, Format: design.DetectFormat(raw)})
		if err != nil {
			return err
		}
		root.log.WithFields(logrus.Fields{"id": id, "plan": plan.Name}).Info("plan stored")
	}

	out := cmd.OutOrStdout()
	if opts.router > 0 {
		ropts := render.Options{Template: opts.template, GeneratedAt: time.Now()}
		if opts.sshUser != "" {
			ropts.SSH = &render.SSH{Username: opts.sshUser, Secret: opts.sshPass, Domain: opts.sshDomain}
		}
		text, err := render.Render(plan, opts.router, ropts)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, text)
		return err
	}
	switch strings.ToLower(opts.output) {
	case "text", "":
		return writePlanText(out, plan)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(plan); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
	return errors.Errorf("unknown output %q: want text, yaml or json", opts.output)
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the plan API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			m, err := newPlanMetrics(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			srv := newServer(st, root.log, m)
			root.log.WithFields(logrus.Fields{"listen": listen, "db": root.dbPath}).Info("routeplan listening")
			return srv.routes().Run(listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", mustEnv("LISTEN_ADDR", "0.0.0.0:8080"), "listen address (LISTEN_ADDR)")
	return cmd
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			v, err := st.SchemaVersion()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return err
		},
	}
}

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List configuration templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range render.Templates() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.Name, t.Version); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
