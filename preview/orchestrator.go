package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	reasonIncompatible    = "incompatible format/version"
	reasonImageConversion = "image conversion failed"
	reasonRetrieval       = "unable to retrieve source document"
	reasonInternal        = "internal conversion error"
)

// Options wires the collaborators of an Orchestrator. HTML, Validator and Jobs are optional.
type Options struct {
	Cache          *ConversionCache
	Gate           PasswordGate
	Fetcher        Fetcher
	Documents      DocumentConverter
	Images         ImageConverter
	HTML           PostProcessor
	Validator      ArtifactValidator
	Jobs           JobTracker
	ConvertWorkers int
	RenderWorkers  int
}

// Orchestrator resolves preview requests into presentation plans
type Orchestrator struct {
	opts         Options
	convertSlots *semaphore.Weighted
	renderSlots  *semaphore.Weighted
	flights      singleflight.Group
}

// NewOrchestrator checks the required collaborators and sizes the engine pools
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Cache == nil:
		return nil, errors.New("orchestrator needs a conversion cache")
	case opts.Gate == nil:
		return nil, errors.New("orchestrator needs a password gate")
	case opts.Fetcher == nil:
		return nil, errors.New("orchestrator needs a fetcher")
	case opts.Documents == nil:
		return nil, errors.New("orchestrator needs a document converter")
	case opts.Images == nil:
		return nil, errors.New("orchestrator needs an image converter")
	}
	if opts.ConvertWorkers < 1 {
		opts.ConvertWorkers = 1
	}
	if opts.RenderWorkers < 1 {
		opts.RenderWorkers = 1
	}
	return &Orchestrator{
		opts:         opts,
		convertSlots: semaphore.NewWeighted(int64(opts.ConvertWorkers)),
		renderSlots:  semaphore.NewWeighted(int64(opts.RenderWorkers)),
	}, nil
}

// Resolve satisfies one preview request. It never returns an engine error: every
// failure becomes an Unsupported or RequestPassword plan.
func (o *Orchestrator) Resolve(ctx context.Context, req DocumentRequest, policy Policy) (plan PresentationPlan) {
	req = req.Normalize()
	log := Logger.With("source", req.Source, "ext", req.Extension, "mode", req.Mode)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic while resolving preview", "panic", r)
			plan = Unsupported{Reason: reasonInternal}
		}
	}()

	if err := req.Validate(); err != nil {
		log.Warn("Rejected preview request", "error", err)
		return Unsupported{Reason: err.Error()}
	}
	if direct, ok := directViewPlan(req, policy); ok {
		log.Debug("Serving document with direct view", "plan", direct.Kind())
		return direct
	}

	key := req.CacheKey()
	log = log.With("cacheKey", key)

	artifact, cached := "", false
	if policy.CacheEnabled && !req.ForceRefresh {
		artifact, cached = o.opts.Cache.Get(ctx, key)
	}
	if cached {
		log.Debug("Using cached artifact", "path", artifact)
	} else {
		outcome := o.convertShared(ctx, key, req, policy, log)
		if outcome.Kind != OutcomeSuccess {
			log.Info("Conversion did not succeed", "outcome", outcome.Kind.String(), "reason", outcome.Reason)
			return planForOutcome(outcome)
		}
		artifact = outcome.ArtifactPath
	}

	if req.WantsImages() {
		return o.resolveImages(ctx, key, artifact, req, policy, log)
	}
	return o.documentPlan(artifact, req, log)
}

// directViewPlan short circuits types the browser renders itself
func directViewPlan(req DocumentRequest, policy Policy) (PresentationPlan, bool) {
	if !policy.DirectViewEnabled || req.Mode == ModeSpreadsheetHTML {
		return nil, false
	}
	switch Formats().DirectViewKind(req.Extension) {
	case DirectViewSpreadsheet:
		return ShowSpreadsheetHTML{URL: req.SourceURL}, true
	case DirectViewCSV:
		return ShowCsv{URL: req.SourceURL}, true
	}
	return nil, false
}

// planForOutcome maps a failed conversion onto the plan shown to the user
func planForOutcome(outcome ConversionOutcome) PresentationPlan {
	switch outcome.Kind {
	case OutcomePasswordRequired:
		return RequestPassword{Retry: false}
	case OutcomePasswordIncorrect:
		return RequestPassword{Retry: true}
	case OutcomeIncompatibleFormat, OutcomeConversionFailed:
		return Unsupported{Reason: outcome.Reason}
	default:
		return Unsupported{Reason: reasonInternal}
	}
}

// imagePlan picks the image layout for a rendered page sequence
func imagePlan(req DocumentRequest, urls []string) PresentationPlan {
	layout := LayoutPictures
	if req.Mode == ModeGallery {
		layout = LayoutOfficePictures
		if Formats().IsSlides(req.Extension) {
			layout = LayoutSlides
		}
	}
	return ShowImages{URLs: urls, Layout: layout}
}

func (o *Orchestrator) documentPlan(artifact string, req DocumentRequest, log *slog.Logger) PresentationPlan {
	url, err := o.opts.Cache.URL(artifact)
	if err != nil {
		log.Error("Failed to address converted artifact", "error", err)
		return Unsupported{Reason: reasonInternal}
	}
	if req.HTMLView {
		return ShowSpreadsheetHTML{URL: url}
	}
	return ShowPdf{URL: url}
}

// convertShared runs at most one conversion per cache key; concurrent callers share its outcome.
// Forced refreshes fly separately so they never join a flight answered from the cache.
func (o *Orchestrator) convertShared(ctx context.Context, key string, req DocumentRequest, policy Policy, log *slog.Logger) ConversionOutcome {
	flight := key
	if req.ForceRefresh {
		flight = key + "#refresh"
	}
	v, _, shared := o.flights.Do(flight, func() (interface{}, error) {
		// a flight that finished between our cache miss and Do already published
		if policy.CacheEnabled && !req.ForceRefresh {
			if artifact, ok := o.opts.Cache.Get(ctx, key); ok {
				return Success(artifact), nil
			}
		}
		return o.convert(ctx, key, req, policy, log), nil
	})
	if shared {
		log.Debug("Shared in-flight conversion")
	}
	return v.(ConversionOutcome)
}

func (o *Orchestrator) convert(ctx context.Context, key string, req DocumentRequest, policy Policy, log *slog.Logger) (outcome ConversionOutcome) {
	jobID := o.startJob(ctx, key, req.Source, log)
	defer func() {
		o.finishJob(ctx, jobID, outcome, log)
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic in conversion", "panic", r)
			outcome = ConversionFailed(reasonInternal)
		}
	}()

	src, err := o.opts.Fetcher.Fetch(ctx, req)
	if err != nil {
		log.Error("Failed to retrieve source document", "error", err)
		return ConversionFailed(reasonRetrieval)
	}

	protected := o.opts.Gate.IsProtected(src)
	if protected && req.Credential == "" {
		log.Info("Document is password protected and no password was supplied")
		return PasswordRequired()
	}

	dest := filepath.Join(o.opts.Cache.Root(), key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		log.Error("Failed to create artifact directory", "error", err)
		return ConversionFailed(reasonInternal)
	}
	tmp := tempSibling(dest)

	opts := ConvertOptions{Format: req.TargetFormat(), Extension: req.Extension}
	// engines only see a credential for documents that need one
	if protected {
		opts.Credential = req.Credential
	}
	err = o.runConverter(ctx, src, tmp, opts)
	if err != nil && !protected && req.Credential != "" && IsSecurityFailure(err) {
		log.Info("Engine found protection the gate missed, retrying with the password")
		_ = os.Remove(tmp)
		opts.Credential = req.Credential
		err = o.runConverter(ctx, src, tmp, opts)
	}
	if err == nil {
		err = o.checkArtifact(tmp, req)
	}
	if err != nil {
		_ = os.Remove(tmp)
		if ctx.Err() != nil {
			log.Warn("Conversion abandoned", "error", ctx.Err())
			return ConversionFailed(reasonInternal)
		}
		return o.classifyFailure(err, src, protected, req.Credential, log)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		log.Error("Failed to publish converted artifact", "error", err)
		return ConversionFailed(reasonInternal)
	}
	log.Info("Converted document", "artifact", dest)

	if policy.DeleteSourceFile && !req.FromArchive {
		if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to delete source after conversion", "path", src, "error", err)
		}
	}
	// protected documents only reach here with a credential, whose fingerprint is part of the key
	if policy.CacheEnabled {
		if err := o.opts.Cache.Put(ctx, key, dest); err != nil {
			log.Error("Failed to record converted artifact", "error", err)
		}
		o.opts.Cache.DropPages(ctx, key)
	}
	return Success(dest)
}

func (o *Orchestrator) runConverter(ctx context.Context, src, dest string, opts ConvertOptions) error {
	if err := o.convertSlots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.convertSlots.Release(1)
	return o.opts.Documents.Convert(ctx, src, dest, opts)
}

// checkArtifact post-processes html output and validates pdf output
func (o *Orchestrator) checkArtifact(path string, req DocumentRequest) error {
	if req.HTMLView {
		if o.opts.HTML == nil {
			return nil
		}
		return o.opts.HTML.Process(path)
	}
	if o.opts.Validator == nil {
		return nil
	}
	return o.opts.Validator.Validate(path)
}

// classifyFailure only reports a password problem when the document is known to be
// protected, or the engine flagged a security failure, and the credential does not open it
func (o *Orchestrator) classifyFailure(err error, src string, protected bool, credential string, log *slog.Logger) ConversionOutcome {
	if (protected || IsSecurityFailure(err)) && !o.opts.Gate.IsCompatible(src, credential) {
		log.Info("Supplied password does not unlock the document", "error", err)
		if credential == "" {
			return PasswordRequired()
		}
		return PasswordIncorrect()
	}
	log.Warn("Document conversion failed", "error", err)
	return IncompatibleFormat(reasonIncompatible)
}

func (o *Orchestrator) resolveImages(ctx context.Context, key, artifact string, req DocumentRequest, policy Policy, log *slog.Logger) PresentationPlan {
	var pages []string
	cached := false
	if policy.CacheEnabled {
		pages, cached = o.opts.Cache.Pages(ctx, key)
	}
	if !cached {
		v, err, _ := o.flights.Do(key+"#pages", func() (interface{}, error) {
			if policy.CacheEnabled {
				if pages, ok := o.opts.Cache.Pages(ctx, key); ok {
					return pages, nil
				}
			}
			return o.renderPages(ctx, key, artifact, policy, log)
		})
		if err != nil {
			if IsPasswordFailure(err) {
				log.Info("Page rendering needs a password", "error", err)
				return RequestPassword{Retry: false}
			}
			log.Warn("Page rendering failed", "error", err)
			return Unsupported{Reason: reasonImageConversion}
		}
		pages = v.([]string)
	}
	if len(pages) == 0 {
		return Unsupported{Reason: reasonImageConversion}
	}

	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		url, err := o.opts.Cache.URL(p)
		if err != nil {
			log.Error("Failed to address page image", "error", err)
			return Unsupported{Reason: reasonImageConversion}
		}
		urls = append(urls, url)
	}
	return imagePlan(req, urls)
}

// renderPages renders into a temporary directory and moves each page into place
func (o *Orchestrator) renderPages(ctx context.Context, key, artifact string, policy Policy, log *slog.Logger) ([]string, error) {
	dir := filepath.Join(o.opts.Cache.Root(), PageDir(key))
	tmpDir := tempSibling(dir)
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create render directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := o.renderSlots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	rendered, err := o.opts.Images.RenderPages(ctx, artifact, tmpDir)
	o.renderSlots.Release(1)
	if err != nil {
		return nil, err
	}
	if len(rendered) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create page directory: %w", err)
	}
	pages := make([]string, 0, len(rendered))
	for _, p := range rendered {
		final := filepath.Join(dir, filepath.Base(p))
		if err := os.Rename(p, final); err != nil {
			return nil, fmt.Errorf("failed to publish page image: %w", err)
		}
		pages = append(pages, final)
	}
	log.Info("Rendered page images", "pages", len(pages))

	if policy.CacheEnabled {
		if err := o.opts.Cache.PutPages(ctx, key, pages); err != nil {
			log.Error("Failed to record page images", "error", err)
		}
	}
	return pages, nil
}

func (o *Orchestrator) startJob(ctx context.Context, key, source string, log *slog.Logger) string {
	if o.opts.Jobs == nil {
		return ""
	}
	id, err := o.opts.Jobs.StartConversion(ctx, key, source)
	if err != nil {
		log.Warn("Failed to record conversion job", "error", err)
		return ""
	}
	return id
}

func (o *Orchestrator) finishJob(ctx context.Context, jobID string, outcome ConversionOutcome, log *slog.Logger) {
	if o.opts.Jobs == nil || jobID == "" {
		return
	}
	detail := outcome.Reason
	if outcome.Kind == OutcomeSuccess {
		detail = outcome.ArtifactPath
	}
	if err := o.opts.Jobs.FinishConversion(ctx, jobID, outcome.Kind == OutcomeSuccess, outcome.Kind.String()+": "+detail); err != nil {
		log.Warn("Failed to complete conversion job", "jobID", jobID, "error", err)
	}
}

// tempSibling names a private location next to p, so a rename publishes it atomically
func tempSibling(p string) string {
	ext := filepath.Ext(p)
	return strings.TrimSuffix(p, ext) + ".tmp-" + ulid.Make().String() + ext
}
