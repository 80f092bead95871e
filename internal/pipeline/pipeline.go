// Package pipeline runs one meeting upload end to end: stage, merge,
// publish, transcribe, analyze, persist and notify.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"meeting-insights-go/internal/analysis"
	"meeting-insights-go/internal/config"
	"meeting-insights-go/internal/media"
	"meeting-insights-go/internal/storage"
	"meeting-insights-go/internal/store"
	"meeting-insights-go/internal/tempfiles"
	"meeting-insights-go/internal/types"
)

type Merger interface {
	Merge(ctx context.Context, inputs []string, outPath string) (media.MergedAudio, error)
}

type Publisher interface {
	Publish(ctx context.Context, data []byte, key, contentType string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type MeetingStore interface {
	Save(ctx context.Context, in store.MeetingInput) (store.SaveResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, to, summary, note, recommendations string) error
}

// Deps are the collaborators of a run. Store and Notifier may be nil.
type Deps struct {
	Merger      Merger
	Publisher   Publisher
	Transcriber Transcriber
	Analyzer    analysis.Analyzer
	Store       MeetingStore
	Notifier    Notifier
	Metrics     *Metrics
}

type Options struct {
	TmpDir          string
	ExternalTimeout time.Duration
	FailurePolicy   config.FailurePolicy
	OriginalsPolicy config.OriginalsPolicy
}

// Submission is a validated upload.
type Submission struct {
	Primary types.UploadedStream
	Remotes []types.UploadedStream
	Session *types.SessionSnapshot
}

// Streams returns the primary followed by the remotes in submission order.
func (s Submission) Streams() []types.UploadedStream {
	return append([]types.UploadedStream{s.Primary}, s.Remotes...)
}

// Warning records a stage that continued with an empty value.
type Warning struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

type Result struct {
	RunID            string                  `json:"-"`
	Merged           string                  `json:"merged"`
	Originals        []types.OriginalLocator `json:"originals"`
	Analysis         types.AnalysisResult    `json:"analysis"`
	MeetingID        *uint                   `json:"meeting_id,omitempty"`
	MergedDurationMs int64                   `json:"merged_duration_ms,omitempty"`
	Warnings         []Warning               `json:"warnings,omitempty"`
}

type Orchestrator struct {
	deps Deps
	opts Options
	log  *logrus.Entry
	now  func() time.Time

	notifications sync.WaitGroup
}

func New(deps Deps, opts Options, log *logrus.Entry) *Orchestrator {
	if opts.ExternalTimeout == 0 {
		opts.ExternalTimeout = 2 * time.Minute
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = config.Degrade
	}
	if opts.OriginalsPolicy == "" {
		opts.OriginalsPolicy = config.ReportOriginal
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	return &Orchestrator{deps: deps, opts: opts, log: log.WithField("component", "pipeline"), now: time.Now}
}

// Wait blocks until every dispatched notification has finished.
func (o *Orchestrator) Wait() { o.notifications.Wait() }

// run is the state of a single submission.
type run struct {
	id      string
	stage   Stage
	started time.Time
	last    time.Time
	log     *logrus.Entry
	metrics *Metrics
	result  *Result
}

func (r *run) advance(next Stage) {
	now := time.Now()
	r.metrics.StageDuration.WithLabelValues(string(next)).Observe(now.Sub(r.last).Seconds())
	r.last = now
	r.stage = next
	r.log.WithField("stage", next).Debug("stage reached")
}

func (r *run) fail(kind Kind, err error) error {
	se := &StageError{Stage: r.stage, Kind: kind, Err: err}
	r.stage = StageFailed
	return se
}

func (r *run) degrade(stage Stage, msg string, err error) {
	r.log.WithField("stage", stage).WithField("error", err.Error()).Warn(msg)
	r.metrics.Degraded.WithLabelValues(string(stage)).Inc()
	r.result.Warnings = append(r.result.Warnings, Warning{Stage: stage, Message: msg})
}

// Run processes one submission. Temp files are removed on every exit path.
// External calls run detached from ctx cancellation so a client disconnect
// never leaves a half written meeting; each call gets its own timeout.
func (o *Orchestrator) Run(ctx context.Context, sub Submission) (*Result, error) {
	if len(sub.Primary.Data) == 0 {
		return nil, Validation("missing user_audio")
	}

	r := &run{
		id:      uuid.NewString(),
		stage:   StageIntake,
		started: time.Now(),
		metrics: o.deps.Metrics,
		result:  &Result{},
	}
	r.last = r.started
	r.result.RunID = r.id
	r.log = o.log.WithField("run_id", r.id)

	guard := tempfiles.New(o.opts.TmpDir, r.id, r.log)
	defer guard.ReleaseAll()

	res, err := o.run(context.WithoutCancel(ctx), r, guard, sub)
	if err != nil {
		kind := KindOf(err)
		r.metrics.Runs.WithLabelValues("failed", string(kind)).Inc()
		r.log.WithField("kind", kind).WithField("error", err.Error()).Error("pipeline run failed")
		return nil, err
	}
	r.advance(StageResponded)
	r.metrics.Runs.WithLabelValues("ok", "").Inc()
	r.log.WithFields(logrus.Fields{
		"duration_ms": time.Since(r.started).Milliseconds(),
		"streams":     len(res.Originals),
		"warnings":    len(res.Warnings),
	}).Info("pipeline run completed")
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, r *run, guard *tempfiles.Guard, sub Submission) (*Result, error) {
	streams := sub.Streams()

	inputs := make([]string, 0, len(streams))
	for _, s := range streams {
		p, err := guard.WriteFile(s.Filename, s.Data)
		if err != nil {
			return nil, r.fail(KindTranscoding, err)
		}
		inputs = append(inputs, p)
	}
	r.advance(StageStaged)

	outPath, err := guard.Path(media.OutputName(o.now()))
	if err != nil {
		return nil, r.fail(KindTranscoding, err)
	}
	mctx, cancel := context.WithTimeout(ctx, o.opts.ExternalTimeout)
	merged, err := o.deps.Merger.Merge(mctx, inputs, outPath)
	cancel()
	if err != nil {
		return nil, r.fail(KindTranscoding, err)
	}
	r.result.MergedDurationMs = merged.Duration.Milliseconds()
	r.advance(StageMerged)

	if err := o.publish(ctx, r, merged, streams); err != nil {
		return nil, err
	}
	r.advance(StagePublished)

	transcript, err := o.transcribe(ctx, merged.Path)
	if err != nil {
		if o.opts.FailurePolicy == config.Abort {
			return nil, r.fail(KindTranscription, err)
		}
		r.degrade(StageTranscribed, "transcription unavailable", err)
		transcript = ""
	}
	r.result.Analysis.Transcript = transcript
	r.advance(StageTranscribed)

	if err := o.analyze(ctx, r, transcript); err != nil {
		return nil, err
	}
	r.advance(StageAnalyzed)

	if sub.Session != nil && o.deps.Store != nil {
		if err := o.persist(ctx, r, sub.Session); err != nil {
			return nil, r.fail(KindPersistence, err)
		}
	}
	r.advance(StagePersisted)

	if sub.Session != nil {
		o.notify(r, sub.Session.HostEmail())
	}
	r.advance(StageNotified)
	return r.result, nil
}

// publish uploads the merged artifact, which must succeed, then every
// original in parallel. Original failures follow the originals policy.
func (o *Orchestrator) publish(ctx context.Context, r *run, merged media.MergedAudio, streams []types.UploadedStream) error {
	data, err := os.ReadFile(merged.Path)
	if err != nil {
		return r.fail(KindStorage, fmt.Errorf("read merged audio: %w", err))
	}
	pctx, cancel := context.WithTimeout(ctx, o.opts.ExternalTimeout)
	locator, err := o.deps.Publisher.Publish(pctx, data, storage.MergedKey(merged.Name), merged.Encoding)
	cancel()
	if err != nil {
		return r.fail(KindStorage, err)
	}
	r.result.Merged = locator

	token := r.id[:8]
	now := o.now()
	originals := make([]types.OriginalLocator, len(streams))
	errs := make([]error, len(streams))

	// a failed original never cancels its siblings; they finish or time out
	var g errgroup.Group
	g.SetLimit(4)
	for i, s := range streams {
		i, s := i, s
		key := storage.OriginalKey(now, token, s.Filename)
		originals[i] = types.OriginalLocator{Field: s.Field, Key: key}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, o.opts.ExternalTimeout)
			defer cancel()
			loc, err := o.deps.Publisher.Publish(cctx, s.Data, key, s.ContentType)
			if err != nil {
				errs[i] = err
				if o.opts.OriginalsPolicy == config.AbortOnOriginal {
					return err
				}
				return nil
			}
			originals[i].Locator = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return r.fail(KindStorage, fmt.Errorf("original upload: %w", err))
	}
	for i, err := range errs {
		if err == nil {
			continue
		}
		originals[i].Error = "upload failed"
		r.degrade(StagePublished, fmt.Sprintf("original %s not stored", originals[i].Field), err)
	}
	r.result.Originals = originals
	return nil
}

func (o *Orchestrator) transcribe(ctx context.Context, path string) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, o.opts.ExternalTimeout)
	defer cancel()
	return o.deps.Transcriber.Transcribe(tctx, path)
}

// analyze fans out the three prompt kinds. An empty transcript skips the calls.
func (o *Orchestrator) analyze(ctx context.Context, r *run, transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		r.log.Info("empty transcript, analysis skipped")
		return nil
	}
	actx, cancel := context.WithTimeout(ctx, o.opts.ExternalTimeout)
	defer cancel()
	outcomes := analysis.AnalyzeAll(actx, o.deps.Analyzer, transcript)

	var failed []error
	for _, kind := range analysis.Kinds {
		out := outcomes[kind]
		if out.Err != nil {
			failed = append(failed, out.Err)
			if o.opts.FailurePolicy == config.Degrade {
				r.degrade(StageAnalyzed, fmt.Sprintf("%s unavailable", kind), out.Err)
			}
			continue
		}
		switch kind {
		case analysis.Summary:
			r.result.Analysis.Summary = out.Text
		case analysis.StructuredNote:
			r.result.Analysis.StructuredNote = out.Text
		case analysis.Recommendations:
			r.result.Analysis.Recommendations = out.Text
		}
	}
	if len(failed) > 0 && o.opts.FailurePolicy == config.Abort {
		return r.fail(KindAnalysis, errors.Join(failed...))
	}
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, r *run, s *types.SessionSnapshot) error {
	payload, err := Payload(s, types.AudioLocators{Merged: r.result.Merged, Originals: r.result.Originals}, r.result.Analysis)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, o.opts.ExternalTimeout)
	defer cancel()
	saved, err := o.deps.Store.Save(sctx, store.MeetingInput{
		Host:         s.UserProfile,
		Info:         s.MeetingInfo,
		DurationMs:   s.DurationMs,
		Payload:      payload,
		Participants: s.Participants,
		Engagement:   s.Engagement,
	})
	if err != nil {
		return err
	}
	id := saved.MeetingID
	r.result.MeetingID = &id
	r.log.WithField("meeting_id", id).Info("meeting saved")
	return nil
}

// notify sends the report in the background. Failures are logged only.
func (o *Orchestrator) notify(r *run, to string) {
	if to == "" || o.deps.Notifier == nil {
		return
	}
	a := r.result.Analysis
	log := r.log.WithField("to", to)
	o.notifications.Add(1)
	go func() {
		defer o.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.ExternalTimeout)
		defer cancel()
		if err := o.deps.Notifier.Notify(ctx, to, a.Summary, a.StructuredNote, a.Recommendations); err != nil {
			r.metrics.Notifications.WithLabelValues("failed").Inc()
			log.WithField("kind", KindNotification).WithField("error", err.Error()).Warn("notification failed")
			return
		}
		r.metrics.Notifications.WithLabelValues("sent").Inc()
	}()
}

// Payload is the stored meeting document: the client's session object with
// the audio locators and analysis attached.
func Payload(s *types.SessionSnapshot, audio types.AudioLocators, a types.AnalysisResult) ([]byte, error) {
	raw := s.Raw
	if len(raw) == 0 {
		b, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("session payload: %w", err)
	}
	doc["audio"] = audio
	doc["analysis"] = a
	return json.Marshal(doc)
}
