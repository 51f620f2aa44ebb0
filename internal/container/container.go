package container

import (
	"net/http"

	"go-cane-inspector/internal/client"
	"go-cane-inspector/internal/config"
	"go-cane-inspector/internal/controller"
	"go-cane-inspector/internal/factory"
	"go-cane-inspector/internal/logger"
	"go-cane-inspector/internal/observer"
	"go-cane-inspector/internal/storage"
	"go-cane-inspector/internal/transport"
	"go-cane-inspector/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	publisher  *observer.EventPublisher
	metrics    *observer.MetricsObserver
	client     *client.HTTPClient
	sources    factory.SourceFactory
	controller *controller.Controller
	handler    http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, observers ...observer.Observer) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)

	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)
	for _, o := range observers {
		publisher.Subscribe(o)
	}

	analysisClient := client.New(cfg.Endpoint, client.Options{
		Timeout:            cfg.SubmitTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})

	sources := factory.NewSourceFactory(factory.Options{
		MaxSize: cfg.MaxFileSize,
		HTTP: storage.HTTPOptions{
			Timeout:            cfg.ImageFetchTimeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		Azure: storage.AzureOptions{
			AccountName: cfg.Azure.AccountName,
			AccountKey:  cfg.Azure.AccountKey,
			ServiceURL:  cfg.Azure.ServiceURL,
		},
	})

	validator := validation.NewFileValidatorWithOptions(validation.AllowedMIMETypes, cfg.MaxFileSize)
	ctrl := controller.New(validator, analysisClient,
		controller.WithPublisher(publisher),
		controller.WithSubmitTimeout(cfg.SubmitTimeout),
		controller.WithParameters(cfg.Defaults),
	)

	handler := transport.NewHandler(transport.Deps{
		Controller: ctrl,
		Metrics:    metrics,
		Sources:    sources,
		Health:     analysisClient,
	}, cfg)

	return &Container{
		config:     cfg,
		publisher:  publisher,
		metrics:    metrics,
		client:     analysisClient,
		sources:    sources,
		controller: ctrl,
		handler:    handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Controller returns the inspection controller
func (c *Container) Controller() *controller.Controller {
	return c.controller
}

// Client returns the analysis server client
func (c *Container) Client() *client.HTTPClient {
	return c.client
}

// Sources returns the image source factory
func (c *Container) Sources() factory.SourceFactory {
	return c.sources
}

// Metrics returns the metrics observer
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}
