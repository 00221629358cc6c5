// Package logger builds *slog.Logger instances for clubkit services.
//
// New takes functional options (level, format, output, static attributes and
// context extractors) and returns a logger whose handler is wrapped with
// LogHandlerDecorator. The decorator runs every registered ContextExtractor
// on each record, which is how request ids, tenant ids and actor ids end up on
// log lines without being passed around explicitly.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "clubkit"),
//	    logger.WithContextExtractors(
//	        logger.ValueExtractor("request_id", middleware.RequestIDKey),
//	        logger.BusinessIDExtractor(),
//	        logger.ActorIDExtractor(),
//	    ),
//	)
//
//	ctx = logger.WithBusinessID(ctx, biz.ID.String())
//	log.InfoContext(ctx, "account synced", logger.Transition(from, to))
//
// Attribute helpers in attr.go keep key names consistent across packages.
// Error and Errors return an empty attribute for nil errors, so they can be
// passed unconditionally.
package logger
