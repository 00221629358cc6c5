// Package httpserver runs an http.Server with graceful shutdown, lifecycle
// hooks and health probes.
//
// Run binds the listener, executes start hooks and serves until the context
// is cancelled. Shutdown then drains in-flight requests within the
// configured deadline and executes stop hooks, which is where callers close
// database pools and redis clients.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server", logger.Error(err))
//	}
//
// LivenessHandler always answers 200. ReadinessHandler runs named checks
// such as pg.Healthcheck and redis.Healthcheck and answers 503 with a JSON
// report when any of them fails.
package httpserver
