// Package extension mounts a Mirror into an HTTP server.
//
// The extension:
//   - Loads configuration from YAML and the environment
//   - Builds the Mirror from that configuration and a store
//   - Serves the webhook route at the configured webhook path
//   - Mounts the admin API under a configurable prefix
//   - Starts and stops the queue worker with the host application
//
// Usage:
//
//	cfg, err := extension.LoadConfig(os.Getenv(extension.EnvConfigPath))
//	if err != nil {
//	    return err
//	}
//	ext, err := extension.New(cfg, extension.WithStore(pgStore))
//	if err != nil {
//	    return err
//	}
//	ext.Start(ctx)
//	defer ext.Stop(ctx)
//	http.ListenAndServe(cfg.ListenAddr, ext.Handler())
package extension
