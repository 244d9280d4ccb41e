package helper

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/enetx/http"
	"golang.org/x/time/rate"

	"github.com/veilproto/htx/internal/catalog"
)

// statusReadDeadline bounds a status request's read per §4.9: "tolerant to
// partial reads and enforces a 900 ms read deadline".
const statusReadDeadline = 900 * time.Millisecond

// updateRateLimit caps how often a caller can force an update cycle; one
// token every five seconds with a small burst absorbs a legitimate
// double-click without opening the mirror fetch to abuse.
const updateRateLimit = rate.Limit(1.0 / 5.0)
const updateRateBurst = 2

// statusSnapshot is the §6 `GET /status` payload. Fields are additive
// only; nothing here is ever renamed once shipped.
type statusSnapshot struct {
	Mode             string         `json:"mode"`
	State            string         `json:"state"`
	DecoyCount       int            `json:"decoy_count"`
	CatalogVersion   uint64         `json:"catalog_version"`
	CatalogExpiresAt time.Time      `json:"catalog_expires_at"`
	CatalogSource    string         `json:"catalog_source"`
	LastTarget       string         `json:"last_target"`
	LastDecoy        string         `json:"last_decoy"`
	LastUpdate       catalog.Result `json:"last_update"`
	PeersOnline      int            `json:"peers_online"`
	CheckupPhase     string         `json:"checkup_phase"`
	SeedURL          string         `json:"seed_url"`
	ConfigMode       string         `json:"config_mode"`
}

// StatusServer serves §6's minimal control surface on its own loopback
// port: GET /status, GET /ping, GET|POST /update.
type StatusServer struct {
	orch    *Orchestrator
	limiter *rate.Limiter
	srv     *http.Server
}

func newStatusServer(orch *Orchestrator, bind string, port int) *StatusServer {
	s := &StatusServer{
		orch:    orch,
		limiter: rate.NewLimiter(updateRateLimit, updateRateBurst),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/update", s.handleUpdate)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           mux,
		ReadTimeout:       statusReadDeadline,
		ReadHeaderTimeout: statusReadDeadline,
	}
	return s
}

// Serve blocks until the listener is closed or ctx is cancelled.
func (s *StatusServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = s.srv.Close()
	}()
	err = s.srv.Serve(ln)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.orch.snapshot())
}

func (s *StatusServer) handlePing(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("pong"))
}

func (s *StatusServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	result := s.orch.updater.RunOnce(r.Context())
	s.orch.recordUpdate(result)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
