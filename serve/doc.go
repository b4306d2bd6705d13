// Package serve exposes plugin health over the standard gRPC health
// checking protocol (grpc.health.v1.Health).
//
// Each plugin is published as a service named after the plugin; the empty
// service name carries the aggregate status. A plugin reporting unhealthy is
// NOT_SERVING, a healthy or degraded one is SERVING.
//
//	err := serve.Plugins(ctx, plugins,
//	    serve.WithPort(50051),
//	    serve.WithCheckInterval(15*time.Second),
//	    serve.WithLogger(logger),
//	)
//
// Probes can then use any gRPC health client:
//
//	grpc_health_probe -addr=localhost:50051 -service=Membase
//
// The server stops gracefully on SIGINT, SIGTERM or when ctx is done.
package serve
