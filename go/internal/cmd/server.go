package main

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/bidroom/go/internal/httpapi"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	routerCfg := httpapi.DefaultRouterConfig()
	routerCfg.IsDevelopment = cfg.isDevelopment()
	routerCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	routerCfg.ProxyRatePerMin = cfg.ProxyRatePerMin

	router := httpapi.NewRouter(routerCfg, services.API, services.Gateway)

	// No WriteTimeout: WebSocket connections are long-lived and manage
	// their own deadlines.
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
