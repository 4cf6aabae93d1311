package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/drummonds/officepreview/config"
	"github.com/drummonds/officepreview/engine/htmlview"
	"github.com/drummonds/officepreview/engine/officeconv"
	"github.com/drummonds/officepreview/engine/officecrypt"
	"github.com/drummonds/officepreview/engine/pdfrenderer"
	"github.com/drummonds/officepreview/fetch"
	"github.com/drummonds/officepreview/preview"
)

// Pipeline is a preview orchestrator wired to the configured engines
type Pipeline struct {
	*preview.Orchestrator
	renderer pdfrenderer.Renderer
	gcs      *fetch.GCSDownloader
}

// NewPipeline builds the orchestrator described by serverConfig on top of repo
func NewPipeline(ctx context.Context, serverConfig config.ServerConfig, repo preview.Store, jobs preview.JobTracker) (*Pipeline, error) {
	cache, err := preview.NewConversionCache(repo, serverConfig.FileDir, serverConfig.BaseURL)
	if err != nil {
		return nil, err
	}

	fetcher, gcs, err := NewFetcher(ctx, serverConfig)
	if err != nil {
		return nil, err
	}

	renderer, err := pdfrenderer.NewRenderer(serverConfig.RendererType, serverConfig.RenderWorkers)
	if err != nil {
		closeGCS(gcs)
		return nil, fmt.Errorf("failed to start pdf renderer: %w", err)
	}
	Logger.Info("PDF renderer ready", "type", serverConfig.RendererType, "workers", serverConfig.RenderWorkers)

	orchestrator, err := preview.NewOrchestrator(preview.Options{
		Cache:          cache,
		Gate:           officecrypt.NewGate(Logger),
		Fetcher:        fetcher,
		Documents:      NewDocumentConverter(serverConfig),
		Images:         NewPageImageConverter(renderer, serverConfig.ImageWidth, serverConfig.ImageQuality, serverConfig.RenderWorkers),
		HTML:           htmlview.Normalizer{},
		Validator:      PDFValidator{},
		Jobs:           jobs,
		ConvertWorkers: serverConfig.ConvertWorkers,
		RenderWorkers:  serverConfig.RenderWorkers,
	})
	if err != nil {
		renderer.Close()
		closeGCS(gcs)
		return nil, err
	}

	return &Pipeline{Orchestrator: orchestrator, renderer: renderer, gcs: gcs}, nil
}

// PolicyFromConfig returns the per-request retention flags of serverConfig
func PolicyFromConfig(serverConfig config.ServerConfig) preview.Policy {
	return preview.Policy{
		CacheEnabled:      serverConfig.CacheEnabled,
		DeleteSourceFile:  serverConfig.DeleteSourceFile,
		DirectViewEnabled: serverConfig.OfficeTypeWeb,
	}
}

// Close releases the renderer and storage clients
func (p *Pipeline) Close() error {
	err := p.renderer.Close()
	if p.gcs != nil {
		err = errors.Join(err, p.gcs.Close())
	}
	return err
}

// NewDocumentConverter routes PDF sources to the passthrough, office documents to the configured engine
// and html output to a local LibreOffice.
func NewDocumentConverter(serverConfig config.ServerConfig) *officeconv.Router {
	soffice := officeconv.NewSofficeConverter(serverConfig.SofficePath, serverConfig.ConvertTimeout)
	router := &officeconv.Router{
		PDF:    officeconv.PDFPassthrough{},
		Office: soffice,
		HTML:   soffice,
	}
	if serverConfig.ConverterType != "soffice" {
		router.Office = officeconv.NewGotenbergConverter(serverConfig.GotenbergURL, serverConfig.ConvertTimeout)
	}
	Logger.Info("Document converter ready", "type", serverConfig.ConverterType)
	return router
}

// NewFetcher registers a downloader for every remote store that is configured
func NewFetcher(ctx context.Context, serverConfig config.ServerConfig) (*fetch.Router, *fetch.GCSDownloader, error) {
	router := fetch.NewRouter(SourceDir(serverConfig))
	router.Register(fetch.NewHTTPDownloader(serverConfig.FetchTimeout), "http", "https")

	if serverConfig.S3Endpoint != "" {
		s3, err := fetch.NewS3Downloader(serverConfig.S3Endpoint, serverConfig.S3AccessKey, serverConfig.S3SecretKey, serverConfig.S3Region, serverConfig.S3Secure)
		if err != nil {
			return nil, nil, err
		}
		router.Register(s3, "s3")
		Logger.Info("S3 retrieval enabled", "endpoint", serverConfig.S3Endpoint)
	}

	var gcs *fetch.GCSDownloader
	if serverConfig.GCSEnabled {
		var err error
		gcs, err = fetch.NewGCSDownloader(ctx)
		if err != nil {
			return nil, nil, err
		}
		router.Register(gcs, "gs")
		Logger.Info("GCS retrieval enabled")
	}
	return router, gcs, nil
}

func closeGCS(gcs *fetch.GCSDownloader) {
	if gcs != nil {
		gcs.Close()
	}
}
