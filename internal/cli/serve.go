package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wavalabs/builder/internal/platform/browser"
	"github.com/wavalabs/builder/internal/platform/config"
	"github.com/wavalabs/builder/internal/platform/otel"
	"github.com/wavalabs/builder/internal/server"
	"github.com/wavalabs/builder/internal/services/ai"
	"github.com/wavalabs/builder/internal/services/shopping"
	"github.com/wavalabs/builder/internal/services/shopping/cutout"
	"github.com/wavalabs/builder/internal/services/shopping/scrape"
	"github.com/wavalabs/builder/internal/services/sns"
	snssqlite "github.com/wavalabs/builder/internal/services/sns/storage/sqlite"
	"github.com/wavalabs/builder/internal/services/video"
)

const (
	openDelay           = 3 * time.Second
	otelShutdownTimeout = 5 * time.Second

	// Shorter values are placeholders people paste by accident.
	minUsableKeyLength = 10
)

func newServeCmd() *cobra.Command {
	var (
		openBrowser bool
		port        int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and background scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, openBrowser)
		},
	}
	cmd.Flags().BoolVar(&openBrowser, "open", false, "open the frontend in the default browser once the server is up")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PORT env)")
	return cmd
}

func runServe(ctx context.Context, port int, openBrowser bool) error {
	cfg, err := config.LoadApp()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Port = port
	}

	otelShutdown, err := otel.Setup(ctx, "wava")
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	dbPath := filepath.Clean(cfg.DBPath)
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := snssqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open sns store: %w", err)
	}
	defer store.Close()

	var generator sns.TextGenerator
	if len(cfg.GeminiAPIKey) > minUsableKeyLength {
		client, err := ai.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Printf("gemini client unavailable, AI features disabled: %v", err)
		} else {
			generator = client
		}
	}

	snsService := sns.NewService(
		store,
		sns.NewFacebook(cfg.FacebookAppID, cfg.FacebookAppSecret),
		sns.NewThreads(cfg.ThreadsAppID, cfg.ThreadsAppSecret),
		sns.NewYouTube(cfg.GoogleClientID, cfg.GoogleClientSecret),
		generator,
	)
	snsService.SetGeneratorFactory(func(ctx context.Context, apiKey string) (sns.TextGenerator, error) {
		return ai.New(ctx, apiKey)
	})

	stateSecret := cfg.StateSecret
	if stateSecret == "" {
		// Per-process secret: in-flight OAuth states do not survive a restart,
		// which matches the lifetime of the consent flow anyway.
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("generate state secret: %w", err)
		}
		stateSecret = hex.EncodeToString(raw)
	}
	signer := sns.NewStateSigner(stateSecret)

	httpServer, err := server.New(server.Config{
		App:           cfg,
		VideoQueue:    video.NewQueue(),
		ShoppingQueue: shopping.NewQueue(nil),
		BuildRunner:   buildRunner(ctx, cfg.RembgQuality),
		SNS:           snsService,
		StateSigner:   signer,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	scheduler := sns.NewScheduler(snsService, store)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpServer.ListenAndServe(ctx)
	})
	group.Go(func() error {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if openBrowser {
		openAddr := cfg.Addr()
		if cfg.Host == "0.0.0.0" {
			openAddr = fmt.Sprintf("127.0.0.1:%d", cfg.Port)
		}
		group.Go(func() error {
			if err := browser.OpenAfter(ctx, openDelay, "http://"+openAddr); err != nil {
				log.Printf("open browser: %v", err)
			}
			return nil
		})
	}
	return group.Wait()
}

// buildRunner returns the shopping pipeline factory. Jobs without usable
// Gemini and Replicate keys get a nil runner and fall back to the mock.
func buildRunner(ctx context.Context, quality string) server.RunnerFactory {
	return func(geminiKey, replicateToken, naverClientID, naverClientSecret string) shopping.Runner {
		if len(geminiKey) <= minUsableKeyLength || len(replicateToken) <= minUsableKeyLength {
			return nil
		}
		analyzer, err := ai.New(ctx, geminiKey)
		if err != nil {
			log.Printf("gemini client for job: %v", err)
			return nil
		}
		scraper := scrape.New(
			scrape.WithBrowser(scrape.NewBrowser()),
			scrape.WithNaverAPI(naverClientID, naverClientSecret),
		)
		return shopping.NewPipeline(
			scraper,
			cutout.NewRemover(replicateToken),
			analyzer,
			shopping.Compose{},
			quality,
		)
	}
}
