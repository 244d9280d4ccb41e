package helper

import (
	"context"
	"fmt"
	"net"

	socks5 "github.com/wzshiming/socks5"

	"github.com/veilproto/htx/internal/xerrors"
)

// SocksServer is the loopback-only SOCKS5 ingress of §4.9: RFC 1928
// CONNECT only, no authentication. wzshiming/socks5's minimal server
// implements only the CONNECT command, which satisfies "rejects BIND and
// UDP ASSOCIATE with the appropriate reply" by construction rather than by
// an explicit check here.
type SocksServer struct {
	orch *Orchestrator
	srv  *socks5.Server
}

func newSocksServer(orch *Orchestrator) *SocksServer {
	s := &SocksServer{orch: orch}
	s.srv = &socks5.Server{
		ProxyDial: s.dial,
	}
	return s
}

func (s *SocksServer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	return s.orch.proxyDial(ctx, network, addr)
}

// Serve binds the loopback SOCKS5 listener and blocks until ctx is
// cancelled or the listener fails.
func (s *SocksServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.orch.cfg.SocksPort))
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, "helper", "socks listen failed", err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	err = s.srv.Serve(ln)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
