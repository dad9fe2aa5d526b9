package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/observability"
)

// Run starts the gateway and serves until ctx is canceled or a listener
// fails, then shuts the listeners down and stops the gateway.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Start(ctx); err != nil {
		return err
	}

	servers := []*http.Server{g.newServer(g.cfg.HTTP.Addr, g.Handler())}
	if addr := g.cfg.HTTP.MetricsAddr; addr != "" {
		servers = append(servers, g.newServer(addr, observability.Handler()))
	}

	listeners := make([]net.Listener, 0, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			_ = g.Stop(context.WithoutCancel(ctx))
			return gwerr.Wrapf(err, gwerr.CodeInternalConfiguration, "gateway: failed to listen on %s", srv.Addr)
		}
		listeners = append(listeners, ln)
	}

	grp, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		ln := listeners[i]
		grp.Go(func() error {
			g.logger.Info("gateway: listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return gwerr.Wrapf(err, gwerr.CodeInternal, "gateway: server on %s failed", srv.Addr)
			}
			return nil
		})
	}
	grp.Go(func() error {
		<-gctx.Done()
		return g.shutdown(context.WithoutCancel(ctx), servers)
	})

	err := grp.Wait()
	if stopErr := g.Stop(context.WithoutCancel(ctx)); err == nil {
		err = stopErr
	}
	return err
}

func (g *Gateway) newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: g.cfg.HTTP.ReadHeaderTimeout,
	}
}

func (g *Gateway) shutdown(ctx context.Context, servers []*http.Server) error {
	g.logger.Info("gateway: shutting down", "timeout", g.cfg.HTTP.ShutdownTimeout.String())
	if timeout := g.cfg.HTTP.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return gwerr.Wrap(err, gwerr.CodeInternal, "gateway: listeners did not drain")
	}
	return nil
}
