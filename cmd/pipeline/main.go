package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/documentpipeline/internal/config"
	"github.com/Lllllllleong/documentpipeline/internal/ingress"
	"github.com/Lllllllleong/documentpipeline/internal/pipeline"
	"github.com/Lllllllleong/documentpipeline/internal/registry"
	"github.com/Lllllllleong/documentpipeline/internal/services"
)

var (
	serviceInstance *ingress.Service
	once            sync.Once
	initErr         error
)

func init() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// Entry point names as seen in GCP.
	functions.HTTP("PipelineAPI", handlePipelineAPI)
	functions.CloudEvent("HandleObjectFinalized", handleObjectFinalized)
}

// main is required by the Go Functions Framework.
func main() {}

// service performs one-time wiring of every client and collaborator. A
// failed initialization is cached; the instance stays unhealthy until the
// function is redeployed with a fixed configuration.
func service() (*ingress.Service, error) {
	once.Do(func() {
		ctx := context.Background()

		cfg, err := config.Load()
		if err != nil {
			initErr = fmt.Errorf("failed to load configuration: %w", err)
			return
		}

		reg, err := registry.NewFirestoreRegistry(ctx, cfg.ProjectID, cfg.RegistryCollection)
		if err != nil {
			initErr = fmt.Errorf("failed to create registry: %w", err)
			return
		}

		store, err := services.NewObjectStore(ctx, cfg.OutputBucket)
		if err != nil {
			initErr = fmt.Errorf("failed to create object store: %w", err)
			return
		}

		prompts, err := services.LoadPrompts(ctx, store, cfg.PromptBucket, cfg.PromptObject)
		if err != nil {
			initErr = err
			return
		}

		vertex, err := services.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.ModelName, prompts)
		if err != nil {
			initErr = fmt.Errorf("failed to create model client: %w", err)
			return
		}

		workflow := pipeline.NewDocumentWorkflow(
			reg,
			services.NewDocumentExtractor(vertex.ExtractorModel, store),
			services.NewModelTransformer(vertex.TransformerModel, prompts.UserPrompt, slog.Default()),
			store,
			pipeline.DefaultPolicies(),
			slog.Default(),
		)
		coordinator := pipeline.NewBatchCoordinator(reg, workflow, cfg.MaxConcurrentDocuments, slog.Default())
		serviceInstance = ingress.NewService(reg, coordinator, slog.Default())
	})
	return serviceInstance, initErr
}

func handlePipelineAPI(w http.ResponseWriter, r *http.Request) {
	svc, err := service()
	if err != nil {
		slog.Error("CRITICAL: Service initialization failed.", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	svc.Routes().ServeHTTP(w, r)
}

func handleObjectFinalized(ctx context.Context, e cloudevents.Event) error {
	svc, err := service()
	if err != nil {
		slog.Error("CRITICAL: Service initialization failed.", "error", err)
		return err
	}
	return svc.HandleObjectFinalized(ctx, e)
}
