// Package app wires configuration, storage, transport, and the dispatch
// pipeline into one runnable unit shared by all CLI commands.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/mailmerge/internal/auth"
	"github.com/foxzi/mailmerge/internal/config"
	"github.com/foxzi/mailmerge/internal/dataset"
	"github.com/foxzi/mailmerge/internal/history"
	"github.com/foxzi/mailmerge/internal/metrics"
	"github.com/foxzi/mailmerge/internal/pipeline"
	"github.com/foxzi/mailmerge/internal/quota"
	"github.com/foxzi/mailmerge/internal/report"
	"github.com/foxzi/mailmerge/internal/smtp"
	"github.com/foxzi/mailmerge/internal/template"
)

// App is the assembled application.
type App struct {
	config  *config.Config
	logger  *slog.Logger
	db      *bolt.DB
	store   *history.BoltStore
	counter *quota.Counter
	reports *report.Repository
	client  *smtp.Client
	metrics *metrics.Metrics
	status  *metrics.Server
}

// New creates the application: opens both databases and builds every
// collaborator, but opens no network connection yet.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(cfg.Storage.Path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	store, err := history.NewBoltStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sent history: %w", err)
	}

	counter, err := quota.NewCounter(db, cfg.Delivery.DailyLimit)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open quota counter: %w", err)
	}

	reports, err := report.Open(cfg.Storage.ReportsPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		store:   store,
		counter: counter,
		reports: reports,
		client: smtp.NewClient(smtp.Config{
			Host:    cfg.SMTP.Host,
			SSLPort: cfg.SMTP.SSLPort,
			TLSPort: cfg.SMTP.TLSPort,
			Timeout: cfg.SMTP.Timeout,
		}, logger.With("component", "smtp_client")),
		metrics: metrics.New(),
	}

	if cfg.Metrics.Enabled {
		a.status = metrics.NewServer(a.metrics, cfg.Metrics.ListenAddr, logger.With("component", "status_server"))
		go func() {
			if err := a.status.ListenAndServe(); err != nil {
				logger.Warn("status server stopped", "error", err)
			}
		}()
	}

	return a, nil
}

// Close releases both databases and shuts the status server down.
func (a *App) Close() error {
	if a.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.status.Shutdown(ctx); err != nil {
			a.logger.Warn("status server shutdown failed", "error", err)
		}
	}

	if err := a.reports.Close(); err != nil {
		a.db.Close()
		return err
	}
	return a.db.Close()
}

// Logger returns the configured root logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// History returns the sent-history store.
func (a *App) History() history.Store { return a.store }

// Quota returns the daily send counter.
func (a *App) Quota() *quota.Counter { return a.counter }

// Reports returns the run report repository.
func (a *App) Reports() *report.Repository { return a.reports }

// Credentials assembles SMTP credentials from the configuration: the
// password kind reads the secret from the environment, the oauth2 kind
// loads the token file.
func (a *App) Credentials() (*auth.Credentials, error) {
	switch a.config.Auth.Kind {
	case "oauth2":
		creds, err := auth.LoadFile(a.config.Auth.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials file: %w", err)
		}
		return creds, creds.Validate()
	default:
		creds := &auth.Credentials{
			Kind:     auth.KindPassword,
			Username: a.config.Auth.Username,
			Password: a.config.Password(),
		}
		if creds.Password == "" {
			return nil, fmt.Errorf("password environment variable %s is not set", a.config.Auth.PasswordEnv)
		}
		return creds, creds.Validate()
	}
}

// MessageSpec loads template bodies, the signature, and attachments
// from disk and binds them with the dataset settings.
func (a *App) MessageSpec() (*pipeline.MessageSpec, error) {
	body, err := os.ReadFile(a.config.Templates.BodyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read body template: %w", err)
	}

	spec := &pipeline.MessageSpec{
		Subject:     a.config.Templates.Subject,
		Body:        string(body),
		Defaults:    a.config.Dataset.Defaults,
		Mapping:     a.config.Dataset.Mapping,
		EmailColumn: a.config.Dataset.EmailColumn,
		From:        a.config.Sender.Email,
		FromName:    a.config.Sender.Name,
	}

	if err := template.Validate(spec.Subject); err != nil {
		return nil, fmt.Errorf("invalid subject template: %w", err)
	}
	if err := template.Validate(spec.Body); err != nil {
		return nil, fmt.Errorf("invalid body template: %w", err)
	}

	if a.config.Templates.AltBodyFile != "" {
		altBody, err := os.ReadFile(a.config.Templates.AltBodyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read alternate body template: %w", err)
		}
		spec.AltSubject = a.config.Templates.AltSubject
		spec.AltBody = string(altBody)
	}

	// A missing signature degrades to no signature rather than blocking
	// the run.
	if a.config.Sender.SignatureFile != "" {
		sig, err := os.ReadFile(a.config.Sender.SignatureFile)
		if err != nil {
			a.logger.Warn("failed to read signature file, sending without signature", "path", a.config.Sender.SignatureFile, "error", err)
		} else {
			spec.SignatureHTML = string(sig)
		}
	}

	for _, path := range a.config.Attachments {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", path, err)
		}
		spec.Attachments = append(spec.Attachments, smtp.Attachment{
			Filename: filepath.Base(path),
			Content:  content,
		})
	}

	return spec, nil
}

// LoadDataset parses the recipient table.
func (a *App) LoadDataset(path string) (*dataset.Dataset, error) {
	return dataset.LoadFile(path)
}

// Analyze partitions the dataset rows against the configured templates.
// Variables with a column mapping are checked against the mapped column
// and reported back under the template variable name.
func (a *App) Analyze(ds *dataset.Dataset, spec *pipeline.MessageSpec) *dataset.Analysis {
	vars := templateVariables(spec)

	columns := make([]string, len(vars))
	varForColumn := make(map[string]string, len(vars))
	for i, v := range vars {
		col := v
		if mapped, ok := spec.Mapping[v]; ok && mapped != "" {
			col = mapped
		}
		columns[i] = col
		varForColumn[col] = v
	}

	analysis := dataset.Analyze(ds, columns, spec.EmailColumn)
	for _, detail := range analysis.EmptyDetails {
		for i, col := range detail.EmptyVars {
			if v, ok := varForColumn[col]; ok {
				detail.EmptyVars[i] = v
			}
		}
	}
	return analysis
}

// Plan runs the build phase only: the candidate list plus skip counts,
// with nothing sent and nothing recorded.
func (a *App) Plan(ctx context.Context, ds *dataset.Dataset, spec *pipeline.MessageSpec) *pipeline.BuildResult {
	return a.newPipeline().Build(ctx, ds, spec)
}

// Send connects, runs build and dispatch, persists the run report, and
// disconnects. The report is saved even when dispatch aborts early.
func (a *App) Send(ctx context.Context, ds *dataset.Dataset, spec *pipeline.MessageSpec) (*pipeline.RunResult, error) {
	creds, err := a.Credentials()
	if err != nil {
		return nil, err
	}

	if err := a.client.Connect(ctx, creds); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer a.client.Close()

	// Connect may have rotated the access token.
	if creds.Kind == auth.KindOAuth2 {
		if err := creds.SaveFile(a.config.Auth.CredentialsFile); err != nil {
			a.logger.Warn("failed to persist refreshed credentials", "error", err)
		}
	}

	started := time.Now()
	run := a.newPipeline().Run(ctx, ds, spec)

	a.metrics.RunDurationSecs.Observe(time.Since(started).Seconds())
	a.metrics.QuotaRemaining.Set(float64(a.counter.Remaining()))
	a.metrics.EmailsSkippedTotal.WithLabelValues(metrics.ReasonAlreadySent).Add(float64(run.SkippedAlreadySent))
	a.metrics.EmailsSkippedTotal.WithLabelValues(metrics.ReasonNoEmail).Add(float64(run.SkippedNoEmail))

	if count, err := a.store.Count(ctx); err == nil {
		a.metrics.HistorySize.Set(float64(count))
	}

	if err := a.reports.SaveRun(run); err != nil {
		a.logger.Error("failed to save run report", "run_id", run.RunID, "error", err)
	}

	return run, nil
}

// TestConnection verifies credentials without sending anything.
func (a *App) TestConnection(ctx context.Context) (bool, string) {
	creds, err := a.Credentials()
	if err != nil {
		return false, err.Error()
	}
	return a.client.TestConnection(ctx, creds)
}

func (a *App) newPipeline() *pipeline.Pipeline {
	return pipeline.New(a.client, a.store, a.counter, pipeline.Options{
		Delay:          a.config.Delivery.Delay,
		FlushThreshold: a.config.Delivery.FlushThreshold,
		Progress:       a.progress(),
	}, a.logger)
}

// progress feeds every dispatched item into the Prometheus counters and
// the live status snapshot.
func (a *App) progress() pipeline.Progress {
	var sent, failed, halted int
	return func(current, total int, result pipeline.ItemResult) {
		switch result.Status {
		case pipeline.StatusSent:
			sent++
			a.metrics.EmailsSentTotal.Inc()
		case pipeline.StatusFailed:
			failed++
			a.metrics.EmailsFailedTotal.WithLabelValues(metrics.ReasonRejected).Inc()
		case pipeline.StatusHaltedQuota:
			halted++
			a.metrics.EmailsSkippedTotal.WithLabelValues(metrics.ReasonQuota).Inc()
		}
		a.metrics.QuotaRemaining.Set(float64(a.counter.Remaining()))

		if a.status != nil {
			a.status.Update(metrics.Snapshot{
				Running:    current < total,
				Current:    current,
				Total:      total,
				Sent:       sent,
				Failed:     failed,
				Halted:     halted,
				LastTo:     result.To,
				LastStatus: string(result.Status),
			})
		}
	}
}

// templateVariables collects the unique variables across subject and
// body, first occurrence first.
func templateVariables(spec *pipeline.MessageSpec) []string {
	vars := template.ExtractVariables(spec.Subject)
	for _, v := range template.ExtractVariables(spec.Body) {
		seen := false
		for _, have := range vars {
			if have == v {
				seen = true
				break
			}
		}
		if !seen {
			vars = append(vars, v)
		}
	}
	return vars
}

// setupLogger creates a logger based on configuration.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
