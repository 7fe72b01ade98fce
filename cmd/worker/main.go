/**
 * OCR Verify Worker - Main Entry Point
 *
 * Go worker that extracts form text with an ensemble of OCR engines, fuses
 * their outputs and verifies user-entered field values against the result.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed ocr:extract / ocr:verify queue
 * - Recognition ensemble: Tesseract plus remote vision endpoints
 * - Fusion engine with dictionary correction (optional Qdrant index)
 * - Verification engine producing per-field reports
 * - PostgreSQL persistence for jobs, fused results and reports
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/ocrverify-worker/internal/config"
	"github.com/adverant/nexus/ocrverify-worker/internal/fusion"
	"github.com/adverant/nexus/ocrverify-worker/internal/langdetect"
	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
	"github.com/adverant/nexus/ocrverify-worker/internal/processor"
	"github.com/adverant/nexus/ocrverify-worker/internal/queue"
	"github.com/adverant/nexus/ocrverify-worker/internal/recognizer"
	"github.com/adverant/nexus/ocrverify-worker/internal/storage"
	"github.com/adverant/nexus/ocrverify-worker/internal/verification"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(".env.nexus"); err != nil {
		log.Printf("Warning: .env.nexus not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLoggerWithLevel("ocrverify", logging.ParseLevel(cfg.LogLevel), os.Stdout)
	log.Printf("OCR Verify Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, Queue=%s, Qdrant=%s, Workers=%d",
		cfg.RedisURL, cfg.QueueName, cfg.QdrantURL, cfg.WorkerConcurrency)

	tuning, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		log.Fatalf("Failed to load tuning: %v", err)
	}
	vocabularies, err := config.LoadVocabularies(cfg.VocabularyFile)
	if err != nil {
		log.Fatalf("Failed to load vocabularies: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Initialize storage manager (PostgreSQL + optional Qdrant index)
	log.Printf("Connecting to storage...")
	storageManager, err := storage.NewStorageManager(ctx, storage.ManagerConfig{
		DatabaseURL:      cfg.DatabaseURL,
		QdrantAddress:    cfg.QdrantURL,
		QdrantCollection: cfg.QdrantCollection,
		IndexVocabulary:  cfg.VocabularyIndexEnabled,
		Logger:           logger.With("storage"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize storage manager: %v", err)
	}

	if merged, err := storageManager.LoadVocabularies(ctx, vocabularies); err != nil {
		log.Printf("Warning: Failed to load vocabulary table, using built-in vocabularies: %v", err)
	} else {
		vocabularies = merged
	}
	if err := storageManager.IndexVocabularies(ctx, vocabularies); err != nil {
		log.Printf("Warning: Failed to index vocabularies: %v", err)
	}
	log.Printf("Vocabularies loaded: %v", vocabularies.Languages())

	recognizers := buildRecognizers(cfg, logger)
	if len(recognizers) == 0 {
		log.Fatalf("No recognizers configured: enable Tesseract or set VISION_URL / RECOGNIZER_ENDPOINTS")
	}

	correction := tuning.Correction
	correction.Index = storageManager.CandidateIndex()
	correction.Logger = logger.With("corrector")
	engine := fusion.NewEngine(tuning.Fusion, vocabularies, correction, logger.With("fusion"))

	verifier, err := verification.NewVerifier(tuning.Verification, logger.With("verifier"))
	if err != nil {
		log.Fatalf("Failed to initialize verifier: %v", err)
	}

	detector := langdetect.New(tuning.LanguageDetection, logger.With("langdetect"))
	ensemble, err := processor.NewEnsemble(recognizers, engine, detector, tuning.Ensemble, logger.With("ensemble"))
	if err != nil {
		log.Fatalf("Failed to initialize recognition ensemble: %v", err)
	}

	loaderCfg := processor.DefaultLoaderConfig()
	loaderCfg.MaxPageSize = cfg.MaxPageSize
	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Ensemble: ensemble,
		Verifier: verifier,
		Loader:   processor.NewPageLoader(loaderCfg),
	})
	if err != nil {
		log.Fatalf("Failed to initialize document processor: %v", err)
	}

	// Redis result store for API-side polling
	results, err := queue.NewResultStore(ctx, cfg.RedisURL, cfg.QueueName)
	if err != nil {
		log.Fatalf("Failed to initialize result store: %v", err)
	}

	log.Printf("Connecting to Redis queue...")
	queueConsumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         proc,
		Store:             storageManager,
		Results:           results,
		ProcessingTimeout: cfg.ProcessingTimeoutDuration(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := queueConsumer.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("OCR Verify Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", cfg.QueueName)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Recognizers: %v", ensemble.SourceIDs())
	log.Printf("Fusion method: %s", tuning.Fusion.Method)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := queueConsumer.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}

	if stats, err := results.GetStats(shutdownCtx); err == nil {
		log.Printf("Job totals: processing=%d, completed=%d, failed=%d",
			stats["processing"], stats["completed"], stats["failed"])
	}
	if err := results.Close(); err != nil {
		log.Printf("Error closing result store: %v", err)
	}

	log.Printf("Closing storage manager...")
	if err := storageManager.Close(); err != nil {
		log.Printf("Error closing storage manager: %v", err)
	} else {
		log.Printf("Storage manager closed")
	}

	log.Printf("Shutdown complete")
}

func buildRecognizers(cfg *config.Config, logger *logging.Logger) []recognizer.Recognizer {
	var recognizers []recognizer.Recognizer

	if cfg.TesseractEnabled {
		recognizers = append(recognizers, recognizer.NewTesseract(recognizer.TesseractConfig{
			ID:        "tesseract",
			Languages: cfg.TesseractLanguages,
			PSM:       cfg.TesseractPSM,
			Logger:    logger.With("tesseract"),
		}))
	}

	if cfg.VisionURL != "" {
		recognizers = append(recognizers, recognizer.NewRemote(recognizer.RemoteConfig{
			ID:             "vision",
			BaseURL:        cfg.VisionURL,
			PreferAccuracy: true,
			Logger:         logger.With("vision"),
		}))
	}

	for _, id := range cfg.RecognizerIDs() {
		recognizers = append(recognizers, recognizer.NewRemote(recognizer.RemoteConfig{
			ID:      id,
			BaseURL: cfg.RecognizerEndpoints[id],
			Logger:  logger.With(id),
		}))
	}
	return recognizers
}
