package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/relaygrid/orchestrator/internal/approval"
	"github.com/relaygrid/orchestrator/internal/channels"
	"github.com/relaygrid/orchestrator/internal/observability"
	"github.com/relaygrid/orchestrator/internal/router"
	"github.com/relaygrid/orchestrator/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator: listen on every enabled channel and route messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "orchestrator.yaml", "path to configuration file")
	return cmd
}

// serve starts the cron scheduler, the metrics endpoint, and every enabled
// channel adapter, then blocks draining inbound messages and reactions
// through the approval service and router until interrupted.
func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.LogConfig{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
	})
	tracer, shutdownTracing := observability.NewTracer(observability.TraceConfig{
		ServiceName: "orchestrator",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn(ctx, "tracing shutdown failed", "error", err)
		}
	}()
	metrics := observability.NewMetrics()

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn(ctx, "metrics endpoint stopped", "error", err)
		}
	}()

	started := time.Now()
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","uptime_seconds":%d}`, int(time.Since(started).Seconds()))
	})
	healthSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.HTTPPort),
		Handler: healthMux,
	}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn(ctx, "health endpoint stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		_ = healthSrv.Shutdown(shutdownCtx)
	}()

	a.sched.Start(ctx)
	defer a.sched.Stop()

	if a.skills != nil && a.cfg.Skills.Watch {
		if err := a.skills.StartWatching(ctx); err != nil {
			logger.Warn(ctx, "skill watcher unavailable", "error", err)
		} else {
			defer a.skills.Close()
		}
	}

	if err := a.channels.StartAll(ctx); err != nil {
		logger.Warn(ctx, "one or more channel adapters failed to start", "error", err)
	}
	defer a.channels.StopAll(context.Background())

	logger.Info(ctx, "orchestrator serving", "workspace", a.workspaceDir)

	inbound := a.channels.AggregateMessages(ctx)
	reactions := a.channels.AggregateReactions(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info(context.Background(), "shutting down")
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			metrics.MessageReceived(string(msg.Channel), string(models.DirectionInbound))
			go a.handleInbound(ctx, msg, logger, tracer, metrics)
		case re, ok := <-reactions:
			if !ok {
				reactions = nil
				continue
			}
			go a.handleReaction(ctx, re, logger)
		}
	}
}

// handleInbound runs one inbound message through the approval service
// first — chat replies that resolve a pending approval never reach the
// router — falling back to the router otherwise.
func (a *app) handleInbound(ctx context.Context, msg *models.Message, logger *observability.Logger, tracer *observability.Tracer, metrics *observability.Metrics) {
	ctx, span := tracer.TraceMessageProcessing(ctx, string(msg.Channel), string(msg.Direction), msg.SessionID)
	defer span.End()

	channelKey := string(msg.Channel) + ":" + msg.ChannelID
	reply, handled, err := a.approval.HandleMessage(ctx, approval.InboundMessage{
		ChannelID: channelKey,
		UserID:    msg.SenderID,
		Text:      msg.Content,
	})
	if err != nil {
		logger.Error(ctx, "approval handling failed", "error", err, "channel", channelKey)
		metrics.RecordError("approval", "handle_message")
		return
	}
	if handled {
		a.sendReply(ctx, msg, reply, logger, metrics)
		return
	}

	req := &router.Request{
		Provider:  string(msg.Channel),
		Message:   msg,
		SessionID: msg.SessionID,
		ChatID:    msg.ChannelID,
		ThreadID:  msg.ThreadID,
	}
	result, err := a.router.Execute(ctx, req)
	if err != nil {
		logger.Error(ctx, "router dispatch failed", "error", err, "channel", channelKey)
		metrics.RecordError("router", "dispatch")
	}
	if result.SuppressReply || result.Reply == "" {
		return
	}
	a.sendReply(ctx, msg, result.Reply, logger, metrics)
}

// handleReaction maps an emoji placed on an approval prompt back to its
// pending request and applies it as a decision.
func (a *app) handleReaction(ctx context.Context, re channels.Reaction, logger *observability.Logger) {
	requestID, ok := approval.RequestIDFromText(re.MessageText)
	if !ok {
		return
	}
	channelKey := string(re.Channel) + ":" + re.ChatID
	reply, handled, err := a.approval.HandleReaction(ctx, channelKey, requestID, re.Names)
	if err != nil {
		logger.Error(ctx, "reaction handling failed", "error", err, "channel", channelKey)
		return
	}
	if !handled || reply == "" {
		return
	}
	out, found := a.channels.GetOutbound(re.Channel)
	if !found {
		return
	}
	msg := &models.Message{
		Channel:   re.Channel,
		ChannelID: re.ChatID,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   reply,
	}
	if err := out.Send(ctx, msg); err != nil {
		logger.Error(ctx, "send reaction ack failed", "error", err, "channel", channelKey)
	}
}

func (a *app) sendReply(ctx context.Context, in *models.Message, text string, logger *observability.Logger, metrics *observability.Metrics) {
	if text == "" {
		return
	}
	out, ok := a.channels.GetOutbound(in.Channel)
	if !ok {
		logger.Warn(ctx, "no outbound adapter for channel", "channel", in.Channel)
		return
	}
	reply := &models.Message{
		Channel:   in.Channel,
		ChannelID: in.ChannelID,
		ThreadID:  in.ThreadID,
		ReplyTo:   in.ID,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   text,
	}
	if err := out.Send(ctx, reply); err != nil {
		logger.Error(ctx, "send reply failed", "error", err, "channel", in.Channel)
		return
	}
	metrics.MessageSent(string(in.Channel))
}
