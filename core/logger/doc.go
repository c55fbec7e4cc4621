// Package logger provides structured logging utilities built on Go's
// standard slog package: a small factory with environment presets and a
// set of pre-built attribute helpers for common logging scenarios.
//
// # Basic Usage
//
// Create loggers using the factory function with configuration options:
//
//	import "github.com/workstreamhq/relay/core/logger"
//
//	// Development: text format, debug level
//	log := logger.New(logger.WithDevelopment("relay"))
//
//	// Production: JSON format, info level
//	log := logger.New(logger.WithProduction("relay"))
//
//	// Custom configuration
//	log := logger.New(
//		logger.WithLevel(slog.LevelWarn),
//		logger.WithJSONFormatter(),
//		logger.WithOutput(os.Stderr),
//		logger.WithAttrs(slog.String("service", "api")),
//	)
//
//	log.Info("Server starting",
//		logger.Component("server"),
//		logger.Event("startup"),
//	)
//
// # Attribute Helpers
//
// Helpers return an empty Attr for nil or zero inputs, so they are safe
// to use without guards:
//
//	log.Error("Task failed",
//		logger.Error(err),
//		logger.TaskID(task.ID),
//		logger.Queue(task.Queue),
//		logger.RetryCount(int(task.RetryCount)),
//	)
//
//	log.Info("Event delivered",
//		logger.EventID(evt.Metadata.EventID),
//		logger.Event(evt.Metadata.EventType),
//		logger.Duration(time.Since(start)),
//	)
//
//	// Multiple errors
//	log.Error("Shutdown incomplete",
//		logger.Errors(workerErr, schedulerErr),
//	)
//
// # Wiring into Components
//
// Queue and event bus components accept any *slog.Logger through their
// options, so a single configured logger serves the whole application:
//
//	log := logger.New(logger.WithProduction("relay"))
//
//	worker, err := queue.NewWorker(storage,
//		queue.WithWorkerLogger(log.With(logger.Component("queue_worker"))),
//	)
//
// # Global Logger Setup
//
// Install a configured logger as the process default:
//
//	logger.SetAsDefault(logger.New(logger.WithProduction("relay")))
//	slog.Info("Using global logger", logger.Component("global"))
//
// # Testing with Custom Output
//
// Capture logs during testing:
//
//	var buf bytes.Buffer
//	log := logger.New(
//		logger.WithJSONFormatter(),
//		logger.WithOutput(&buf),
//	)
//
//	log.Info("Test message", logger.Component("test"))
//	assert.Contains(t, buf.String(), `"component":"test"`)
package logger
