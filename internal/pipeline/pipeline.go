// Package pipeline orchestrates a mail-merge batch run: build the
// candidate list from the dataset, then dispatch sequentially while
// enforcing the daily quota, pacing sends, and persisting history
// incrementally so an interrupted run neither loses nor duplicates
// progress.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/mailmerge/internal/dataset"
	"github.com/foxzi/mailmerge/internal/history"
	"github.com/foxzi/mailmerge/internal/quota"
	"github.com/foxzi/mailmerge/internal/smtp"
	"github.com/foxzi/mailmerge/internal/template"
)

// Provider submits one rendered message. A nil return is a confirmed
// success. Per-recipient failures return *smtp.DeliveryError; fatal
// connection or authentication failures return *smtp.AuthError and end
// the run.
type Provider interface {
	Send(ctx context.Context, msg *smtp.Message) error
}

// MinDelay is the lower bound on the pause between consecutive sends.
const MinDelay = time.Second

// Candidate is a row that passed email-presence and dedup filtering and
// is eligible for dispatch. Note records whether the alternate template
// or a default value was applied, for the audit trail.
type Candidate struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Note    string `json:"note,omitempty"`
}

// ItemStatus is the final state of one candidate.
type ItemStatus string

const (
	StatusSent        ItemStatus = "sent"
	StatusFailed      ItemStatus = "failed"
	StatusHaltedQuota ItemStatus = "halted_quota"
)

// ItemResult is one line of the itemized run report.
type ItemResult struct {
	Time    time.Time  `json:"time"`
	To      string     `json:"to"`
	Status  ItemStatus `json:"status"`
	Message string     `json:"message,omitempty"`
	Note    string     `json:"note,omitempty"`
}

// BuildResult is the outcome of the build phase.
type BuildResult struct {
	Candidates         []Candidate
	SkippedAlreadySent int
	SkippedNoEmail     int
}

// RunResult is the outcome of a full dispatch, covering every candidate.
type RunResult struct {
	RunID              string       `json:"run_id"`
	Started            time.Time    `json:"started"`
	Finished           time.Time    `json:"finished"`
	Results            []ItemResult `json:"results"`
	Sent               int          `json:"sent"`
	Failed             int          `json:"failed"`
	Halted             int          `json:"halted"`
	SkippedAlreadySent int          `json:"skipped_already_sent"`
	SkippedNoEmail     int          `json:"skipped_no_email"`
}

// MessageSpec describes the templates and identity applied to every row.
type MessageSpec struct {
	Subject       string
	Body          string
	AltSubject    string
	AltBody       string
	Defaults      map[string]string
	Mapping       map[string]string // template variable -> column name
	EmailColumn   string
	From          string
	FromName      string
	SignatureHTML string
	Attachments   []smtp.Attachment
}

// Progress is invoked after every dispatched item with the current
// position, the candidate total, and the item's result.
type Progress func(current, total int, result ItemResult)

// Pipeline wires the collaborators for one batch run.
type Pipeline struct {
	provider Provider
	store    history.Store
	counter  *quota.Counter
	logger   *slog.Logger

	delay          time.Duration
	flushThreshold int
	progress       Progress
	sleep          func(ctx context.Context, d time.Duration) error
}

// Options configures a Pipeline.
type Options struct {
	Delay          time.Duration
	FlushThreshold int
	Progress       Progress
}

// New creates a pipeline. A delay below MinDelay is raised to MinDelay:
// sequential pacing is the self-imposed rate limit that keeps the
// provider from suspending the account.
func New(provider Provider, store history.Store, counter *quota.Counter, opts Options, logger *slog.Logger) *Pipeline {
	delay := opts.Delay
	if delay < MinDelay {
		delay = MinDelay
	}
	return &Pipeline{
		provider:       provider,
		store:          store,
		counter:        counter,
		logger:         logger.With("component", "pipeline"),
		delay:          delay,
		flushThreshold: opts.FlushThreshold,
		progress:       opts.Progress,
		sleep:          sleepContext,
	}
}

// Build produces the ordered candidate list: rows without an email are
// dropped, rows whose normalized address is already in the history
// store are counted as skipped, and every remaining row is rendered.
// The history store is read exactly once; addresses recorded by a
// concurrent process after this read are not seen.
//
// A history store that cannot be read filters nothing: the run
// proceeds with an empty sent-set and the cause is logged, since the
// only cost of a missed entry is a possible duplicate send.
func (p *Pipeline) Build(ctx context.Context, ds *dataset.Dataset, spec *MessageSpec) *BuildResult {
	sent, err := p.store.SentAddresses(ctx)
	if err != nil {
		p.logger.Warn("failed to load sent history, dedup filter disabled for this run; duplicate sends possible", "error", err)
		sent = map[string]struct{}{}
	}

	result := &BuildResult{}

	for i := range ds.Rows {
		email := dataset.EmailValue(ds.Rows[i], spec.EmailColumn)
		if email == "" {
			result.SkippedNoEmail++
			continue
		}

		if _, ok := sent[history.Normalize(email)]; ok {
			result.SkippedAlreadySent++
			continue
		}

		data := applyMapping(ds.RowData(i), spec.Mapping)
		rendered := template.RenderEmail(spec.Subject, spec.Body, data, spec.Defaults, spec.AltSubject, spec.AltBody)

		result.Candidates = append(result.Candidates, Candidate{
			To:      email,
			Subject: rendered.Subject,
			Body:    rendered.Body,
			Note:    buildNote(rendered, data, spec),
		})
	}

	p.logger.Info("build complete",
		"candidates", len(result.Candidates),
		"skipped_already_sent", result.SkippedAlreadySent,
		"skipped_no_email", result.SkippedNoEmail,
	)

	return result
}

// Dispatch sends the candidates in order. The live remaining quota is
// re-checked before every send; once exhausted, this and all following
// candidates are marked halted rather than failed. Successful addresses
// are buffered and flushed to the history store in batches, with an
// unconditional final flush on every exit path.
func (p *Pipeline) Dispatch(ctx context.Context, candidates []Candidate, spec *MessageSpec) *RunResult {
	run := &RunResult{
		RunID:   uuid.New().String(),
		Started: time.Now(),
	}

	writer := history.NewWriter(p.store, p.flushThreshold, p.logger)
	defer writer.Flush(context.WithoutCancel(ctx))

	total := len(candidates)
	var fatalErr error

	for i, cand := range candidates {
		if fatalErr != nil {
			p.record(run, total, ItemResult{
				Time:    time.Now(),
				To:      cand.To,
				Status:  StatusFailed,
				Message: fatalErr.Error(),
			})
			continue
		}

		if err := ctx.Err(); err != nil {
			fatalErr = fmt.Errorf("run canceled: %w", err)
			p.record(run, total, ItemResult{
				Time:    time.Now(),
				To:      cand.To,
				Status:  StatusFailed,
				Message: fatalErr.Error(),
			})
			continue
		}

		// Recomputed fresh each iteration: the counter may have moved
		// since build time.
		if p.counter.Remaining() <= 0 {
			for _, rest := range candidates[i:] {
				p.record(run, total, ItemResult{
					Time:    time.Now(),
					To:      rest.To,
					Status:  StatusHaltedQuota,
					Message: "daily limit reached, resume tomorrow",
				})
			}
			p.logger.Info("dispatch halted by quota", "halted", total-i)
			break
		}

		err := p.provider.Send(ctx, &smtp.Message{
			From:          spec.From,
			FromName:      spec.FromName,
			To:            cand.To,
			Subject:       cand.Subject,
			Body:          cand.Body,
			SignatureHTML: spec.SignatureHTML,
			Attachments:   spec.Attachments,
		})

		switch {
		case err == nil:
			if recordErr := p.counter.Record(1); recordErr != nil {
				p.logger.Warn("failed to persist quota counter", "error", recordErr)
			}
			writer.Add(ctx, cand.To)
			p.record(run, total, ItemResult{
				Time:   time.Now(),
				To:     cand.To,
				Status: StatusSent,
				Note:   cand.Note,
			})

		case smtp.IsFatal(err):
			// Connection or auth breakdown: fail this and every
			// remaining candidate, keep already-buffered history.
			fatalErr = err
			p.record(run, total, ItemResult{
				Time:    time.Now(),
				To:      cand.To,
				Status:  StatusFailed,
				Message: err.Error(),
			})
			p.logger.Error("provider failure, aborting remaining sends",
				"error", err,
				"remaining", total-i-1,
			)

		default:
			p.record(run, total, ItemResult{
				Time:    time.Now(),
				To:      cand.To,
				Status:  StatusFailed,
				Message: err.Error(),
			})
			p.logger.Warn("send failed", "to", cand.To, "error", err)
		}

		if i < total-1 && fatalErr == nil {
			if err := p.sleep(ctx, p.delay); err != nil {
				// Cancellation during the pause is handled at the top of
				// the next iteration.
				continue
			}
		}
	}

	run.Finished = time.Now()
	p.logger.Info("dispatch complete",
		"run_id", run.RunID,
		"sent", run.Sent,
		"failed", run.Failed,
		"halted", run.Halted,
	)

	return run
}

// Run executes build and dispatch as one operation. Re-running over the
// same input is idempotent for recipients whose history flush completed.
func (p *Pipeline) Run(ctx context.Context, ds *dataset.Dataset, spec *MessageSpec) *RunResult {
	build := p.Build(ctx, ds, spec)

	run := p.Dispatch(ctx, build.Candidates, spec)
	run.SkippedAlreadySent = build.SkippedAlreadySent
	run.SkippedNoEmail = build.SkippedNoEmail
	return run
}

// Preview renders one data row (0-based) without touching history or
// quota. Used for inspecting the merge before a run.
func Preview(ds *dataset.Dataset, spec *MessageSpec, index int) (Candidate, error) {
	if index < 0 || index >= len(ds.Rows) {
		return Candidate{}, fmt.Errorf("row %d out of range (dataset has %d rows)", index, len(ds.Rows))
	}

	data := applyMapping(ds.RowData(index), spec.Mapping)
	rendered := template.RenderEmail(spec.Subject, spec.Body, data, spec.Defaults, spec.AltSubject, spec.AltBody)

	return Candidate{
		To:      dataset.EmailValue(ds.Rows[index], spec.EmailColumn),
		Subject: rendered.Subject,
		Body:    rendered.Body,
		Note:    buildNote(rendered, data, spec),
	}, nil
}

func (p *Pipeline) record(run *RunResult, total int, result ItemResult) {
	run.Results = append(run.Results, result)
	switch result.Status {
	case StatusSent:
		run.Sent++
	case StatusFailed:
		run.Failed++
	case StatusHaltedQuota:
		run.Halted++
	}
	if p.progress != nil {
		p.progress(len(run.Results), total, result)
	}
}

// applyMapping rebinds template variable names to column values. An
// identity mapping (or no mapping) leaves the row data untouched.
func applyMapping(data map[string]string, mapping map[string]string) map[string]string {
	if len(mapping) == 0 {
		return data
	}
	for variable, column := range mapping {
		if variable == column {
			continue
		}
		data[variable] = data[column]
	}
	return data
}

// buildNote records which fallback was applied, for the audit column.
func buildNote(rendered template.Rendered, data map[string]string, spec *MessageSpec) string {
	if rendered.UsedAlternate {
		return "alternate template"
	}

	vars := template.ExtractVariables(spec.Subject)
	vars = append(vars, template.ExtractVariables(spec.Body)...)
	for _, v := range vars {
		if data[v] == "" && spec.Defaults[v] != "" {
			return "defaults applied"
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
