package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/plaudehq/opsgate/agent"
	"github.com/plaudehq/opsgate/db"
	"github.com/plaudehq/opsgate/gate"
	"github.com/plaudehq/opsgate/httpapi"
	"github.com/plaudehq/opsgate/providers/openai"
	"github.com/plaudehq/opsgate/sentinel"
	"github.com/plaudehq/opsgate/slack"
	"github.com/plaudehq/opsgate/tools"
	"github.com/plaudehq/opsgate/tools/ops"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent gateway and decision ingestion endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func runServe(ctx context.Context) error {
	log := slog.Default()

	store, cleanup, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	g, auditClose, err := buildGate(store, log)
	if err != nil {
		return err
	}
	defer auditClose()

	ruleset, err := loadRuleset()
	if err != nil {
		return err
	}

	sentinelRules, err := loadSentinelRules()
	if err != nil {
		return err
	}
	watchdog := sentinel.New(g,
		sentinel.WithRules(sentinelRules),
		sentinel.WithLogger(log),
	)

	registry := tools.NewRegistry()
	registry.Register(ops.NewRequestApprovalTool(g, ruleset, log))
	registry.Register(ops.NewCheckDecisionTool(g))

	client := openai.New(llmEndpointFromViper(), llmAPIKeyFromViper())
	engine := agent.New(client, registry,
		agent.WithLogger(log),
		agent.WithSentinel(watchdog),
		agent.WithModel(llmModelFromViper()),
	)

	srv := httpapi.NewServer(engine, g, log)
	addr := viper.GetString("server.addr")
	log.Info("serving", "addr", addr, "store", viper.GetString("gate.store"))
	return srv.ListenAndServe(ctx, addr)
}

func buildStore(ctx context.Context) (gate.ApprovalStore, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(viper.GetString("gate.store"))) {
	case "", "memory":
		return gate.NewMemoryStore(), noop, nil
	case "sqlite":
		gdb, err := db.Open(ctx, dbConfigFromViper())
		if err != nil {
			return nil, noop, fmt.Errorf("open db: %w", err)
		}
		cleanup := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		if viper.GetBool("db.automigrate") {
			if err := db.AutoMigrate(gdb); err != nil {
				cleanup()
				return nil, noop, fmt.Errorf("migrate db: %w", err)
			}
		}
		return gate.NewGormStore(gdb), cleanup, nil
	default:
		return nil, noop, fmt.Errorf("unsupported gate.store: %s", viper.GetString("gate.store"))
	}
}

func buildGate(store gate.ApprovalStore, log *slog.Logger) (*gate.Gate, func(), error) {
	noop := func() {}

	notifier := slack.NewWebhookNotifier(
		viper.GetString("slack.webhook_url"),
		viper.GetString("server.base_url"),
	)
	notifier.Log = log

	opts := []gate.Option{gate.WithLogger(log)}
	if ttl := viper.GetDuration("gate.ttl"); ttl > 0 {
		opts = append(opts, gate.WithTTL(ttl))
	}

	closeAudit := noop
	if path := strings.TrimSpace(viper.GetString("gate.audit.path")); path != "" {
		sink, err := gate.NewJSONLAuditSink(path, viper.GetInt64("gate.audit.rotate_max_bytes"))
		if err != nil {
			return nil, noop, fmt.Errorf("open audit log: %w", err)
		}
		opts = append(opts, gate.WithAudit(sink))
		closeAudit = func() { _ = sink.Close() }
	}

	return gate.New(store, notifier, opts...), closeAudit, nil
}

func loadRuleset() (gate.Ruleset, error) {
	if path := strings.TrimSpace(viper.GetString("gate.rules_path")); path != "" {
		return gate.LoadRuleset(path)
	}
	return gate.DefaultRuleset(), nil
}

func loadSentinelRules() (sentinel.Rules, error) {
	if path := strings.TrimSpace(viper.GetString("sentinel.rules_path")); path != "" {
		return sentinel.LoadRules(path)
	}
	return sentinel.DefaultRules(), nil
}
