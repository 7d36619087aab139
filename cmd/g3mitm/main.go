//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Command g3mitm runs the interception forward proxy: it loads a
// [config.ProxyConfig], wires one shared [serve.Front] from it, and
// accepts connections on every configured listener until SIGINT/SIGTERM.
package main

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bassosimone/inspectproxy/internal/adaptation"
	"github.com/bassosimone/inspectproxy/internal/config"
	"github.com/bassosimone/inspectproxy/internal/escaper"
	"github.com/bassosimone/inspectproxy/internal/metrics"
	"github.com/bassosimone/inspectproxy/internal/serve"
	"github.com/bassosimone/inspectproxy/internal/taskctx"
	"github.com/bassosimone/inspectproxy/internal/tlsintercept"
)

func main() {
	configPath := flag.String("config", "g3mitm.yaml", "path to the proxy configuration file")
	caCertPath := flag.String("ca-cert", "", "PEM file with the interception CA certificate (ephemeral CA used when empty)")
	caKeyPath := flag.String("ca-key", "", "PEM file with the interception CA private key")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on (disabled when empty)")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown grace period")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	front, err := buildFront(cfg, *caCertPath, *caKeyPath, logger)
	if err != nil {
		logger.Error("failed to build proxy front-end", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	front.Metrics = metrics.NewUserMetrics(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	listeners := make([]net.Listener, 0, len(cfg.Listeners))
	for _, lc := range cfg.Listeners {
		ln, err := net.Listen("tcp", lc.Addr)
		if err != nil {
			logger.Error("failed to listen", "listener", lc.Name, "addr", lc.Addr, "error", err)
			os.Exit(1)
		}
		listeners = append(listeners, ln)
		wg.Add(1)
		go acceptLoop(ctx, &wg, ln, lc, front, logger)
	}

	var metricsSrv *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			logger.Info("starting metrics server", "addr", *metricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited unexpectedly", "error", err)
			}
		}()
	}

	logger.Info("g3mitm started", "listeners", len(listeners))
	<-ctx.Done()
	logger.Info("shutting down")

	for _, ln := range listeners {
		ln.Close()
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	front.Wheel.Close()
	wg.Wait()
	logger.Info("g3mitm stopped")
}

// acceptLoop accepts connections on ln until ctx is done, dispatching
// each one to the front-end matching lc.Protocol.
func acceptLoop(ctx context.Context, wg *sync.WaitGroup, ln net.Listener, lc config.ListenerConfig, front *serve.Front, logger *slog.Logger) {
	defer wg.Done()

	var handler func(context.Context, net.Conn) error
	switch lc.Protocol {
	case "socks5":
		socks := serve.NewSOCKS5(front)
		handler = socks.Serve
	default:
		proxy := serve.NewHTTPProxy(front)
		handler = proxy.Serve
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Error("accept failed", "listener", lc.Name, "error", err)
				return
			}
		}
		go func() {
			if err := handler(ctx, conn); err != nil {
				logger.Debug("connection ended", "listener", lc.Name, "error", err)
			}
		}()
	}
}

// buildFront assembles a [*serve.Front] from cfg, loading (or minting) the
// interception CA and wiring the first configured TLS profile, user
// policy, adaptation endpoint, and sticky parameters, when present.
func buildFront(cfg *config.ProxyConfig, caCertPath, caKeyPath string, logger *slog.Logger) (*serve.Front, error) {
	ca, err := loadOrMintCA(caCertPath, caKeyPath)
	if err != nil {
		return nil, err
	}

	front := serve.NewFront(escaper.NewDirectTCP("direct"), logger)
	front.TLSConfig.CA = ca

	if len(cfg.TLSProfiles) > 0 {
		front.TLSConfig.UpstreamProfile = profileFromConfig(cfg.TLSProfiles[0])
	}

	if len(cfg.UserPolicies) > 0 {
		up := cfg.UserPolicies[0]
		front.Policy = taskctx.PolicyKnobs{
			ProhibitUnknownProtocol: up.ProhibitUnknownProtocol,
			ProhibitTimeoutProtocol: up.ProhibitTimeoutProtocol,
		}
		if up.MaxIdleCount > 0 {
			front.Limits.MaxIdleCount = up.MaxIdleCount
		}
		if up.MaxInspectionDepth > 0 {
			front.MaxInspectionDepth = up.MaxInspectionDepth
		}
	}

	if cfg.Sticky.Separator != "" {
		front.StickySep = cfg.Sticky.Separator
	}
	front.StickySuffix = cfg.Sticky.DomainSuffix

	if len(cfg.Adaptation) > 0 {
		ac := cfg.Adaptation[0]
		front.Adapter = adaptation.NewClient(adaptation.Config{
			ServiceURI:   ac.ServiceURI,
			PreviewLimit: ac.PreviewLimit,
			Bypass:       ac.Bypass,
			DialTimeout:  ac.DialTimeout,
			Dialer:       dialAdaptationEndpoint(ac.ServiceURI, ac.DialTimeout),
		})
	}

	return front, nil
}

func dialAdaptationEndpoint(serviceURI string, timeout time.Duration) func(context.Context) (net.Conn, error) {
	return func(ctx context.Context) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		return d.DialContext(ctx, "tcp", serviceURI)
	}
}

func profileFromConfig(tc config.TLSProfileConfig) tlsintercept.Profile {
	if tc.TLCP {
		return tlsintercept.ProfileTLCP()
	}
	profile := tlsintercept.ProfileModern()
	profile.Name = tc.Name
	return profile
}

// loadOrMintCA reads a PEM-encoded CA certificate and EC private key from
// disk, falling back to a freshly minted ephemeral CA (unusable across
// restarts, but enough to run the proxy without operator setup) when no
// path was configured.
func loadOrMintCA(certPath, keyPath string) (*tlsintercept.CertAuthority, error) {
	if certPath == "" || keyPath == "" {
		cert, key, err := tlsintercept.GenerateEphemeralCA()
		if err != nil {
			return nil, err
		}
		return tlsintercept.NewCertAuthority(cert, key, 24*time.Hour), nil
	}

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	certBlock, _ := pem.Decode(certPEM)
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, err
	}
	keyBlock, _ := pem.Decode(keyPEM)
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, err
	}
	return tlsintercept.NewCertAuthority(cert, key, 24*time.Hour), nil
}
