// Package server provides HTTP server management for all modes.
//
// Architecture:
//   - RouteProvider: modes implement this to contribute routes
//   - Manager: binds RouteProviders to listeners
//   - Server providers (admin API) are mounted below the context path
//   - Management providers (health, info) share the server listener unless
//     a separate management port is configured
package server

// Configuration:
//
//   --mode=server|instance|all
//   ADMIN_SERVER_PORT=8090           (admin API)
//   ADMIN_INSTANCE_PORT=8080         (monitored instance)
//   ADMIN_MANAGEMENT_PORT=8081       (optional separate management listener)
//
// Port 0 binds a free port. The bound ports are reported through OnReady,
// which is how the instance runner learns where it is reachable before
// registering.
//
// Usage:
//
//   mgr := server.NewManager(&server.ServerConfig{
//       Address:        "0.0.0.0",
//       Port:           8080,
//       ContextPath:    "/app",
//       ManagementPort: 8081,
//       CORS:           cfg.CORS,
//       LoggingLevel:   cfg.Logging.Level,
//   }, logger)
//
//   mgr.AddProvider(managementProvider)
//   mgr.OnReady(func(ns server.Namespace, port int) {
//       _ = builder.Update(string(ns), port)
//   })
//
//   mgr.Start(ctx)
