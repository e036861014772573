package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/basktfi/backend/internal/config"
	"github.com/basktfi/backend/internal/querier"
)

// Service is the public HTTP surface over the querier. It owns no storage;
// the caller wires the querier and closes the stores behind it.
type Service struct {
	cfg              config.QuerierServerConfig
	logger           *slog.Logger
	querier          *querier.Querier
	allowAllOrigins  bool
	allowedOriginSet map[string]struct{}
}

func New(cfg config.QuerierServerConfig, logger *slog.Logger, q *querier.Querier) *Service {
	allowAllOrigins := false
	allowedOriginSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAllOrigins = true
			continue
		}
		allowedOriginSet[trimmed] = struct{}{}
	}
	if len(allowedOriginSet) == 0 && !allowAllOrigins {
		allowAllOrigins = true
	}

	return &Service{
		cfg:              cfg,
		logger:           logger,
		querier:          q,
		allowAllOrigins:  allowAllOrigins,
		allowedOriginSet: allowedOriginSet,
	}
}

func (s *Service) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/v1/assets", s.handleAssetsRoot)
	mux.HandleFunc("/api/v1/assets/", s.handleAssetsSubroutes)
	mux.HandleFunc("/api/v1/baskts", s.handleBasktsRoot)
	mux.HandleFunc("/api/v1/baskts/", s.handleBasktsSubroutes)
	mux.HandleFunc("/api/v1/orders", s.handleOrdersRoot)
	mux.HandleFunc("/api/v1/orders/", s.handleOrdersSubroutes)
	mux.HandleFunc("/api/v1/positions", s.handlePositionsRoot)
	mux.HandleFunc("/api/v1/positions/", s.handlePositionsSubroutes)
	mux.HandleFunc("/api/v1/pool", s.handlePool)
	mux.HandleFunc("/api/v1/pool/", s.handlePoolSubroutes)
	mux.HandleFunc("/api/v1/withdrawals", s.handleWithdrawalsRoot)
	mux.HandleFunc("/api/v1/withdrawals/", s.handleWithdrawalsSubroutes)
	mux.HandleFunc("/api/v1/fees", s.handleFees)
	mux.HandleFunc("/api/v1/metrics/open-interest", s.handleOpenInterest)
	mux.HandleFunc("/api/v1/metrics/volume", s.handleVolume)
	mux.HandleFunc("/api/v1/prices/performance", s.handleBatchPerformance)
	mux.HandleFunc("/api/v1/prices/", s.handlePricesSubroutes)
	mux.HandleFunc("/api/v1/wallets", s.handleWalletsRoot)
	mux.HandleFunc("/api/v1/wallets/", s.handleWalletsSubroutes)

	handler := s.withCORS(mux)
	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("querier-server started",
		"listen_addr", s.cfg.ListenAddr,
		"allowed_origins", strings.Join(s.cfg.AllowedOrigins, ","),
	)

	select {
	case <-ctx.Done():
		s.logger.Info("querier-server stopping")
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown querier-server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

type healthResponse struct {
	OK bool `json:"ok"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	s.respondJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			allowed := s.allowAllOrigins
			if !allowed {
				_, allowed = s.allowedOriginSet[origin]
			}

			if allowed {
				if s.allowAllOrigins {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "300")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// respondEnvelope writes a querier response using the status code it carries.
func respondEnvelope[T any](s *Service, w http.ResponseWriter, resp querier.Response[T]) {
	code := resp.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	s.respondJSON(w, code, resp)
}

func (s *Service) respondBadRequest(w http.ResponseWriter, message string) {
	s.respondJSON(w, http.StatusBadRequest, querier.Response[struct{}]{
		Success:    false,
		Error:      querier.CodeUnknown,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	})
}

func (s *Service) respondMethodNotAllowed(w http.ResponseWriter) {
	s.respondJSON(w, http.StatusMethodNotAllowed, querier.Response[struct{}]{
		Success:    false,
		Error:      querier.CodeUnknown,
		Message:    "method not allowed",
		StatusCode: http.StatusMethodNotAllowed,
	})
}

func (s *Service) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}

func decodeJSONBody(r *http.Request, out any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseTimeParam accepts RFC 3339 or unix seconds; a missing value yields the
// zero time.
func parseTimeParam(r *http.Request, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	var unix int64
	if _, err := fmt.Sscanf(raw, "%d", &unix); err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return time.Unix(unix, 0).UTC(), nil
}

func parseOptionalInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	var value int
	if _, err := fmt.Sscanf(raw, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

// bigAmount is a 1e6-scaled integer amount carried as a JSON string so
// callers never lose precision to float64.
type bigAmount struct {
	value *big.Int
}

func (a *bigAmount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		a.value = nil
		return nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("invalid integer amount %q", raw)
	}
	a.value = v
	return nil
}

func (a bigAmount) Int() *big.Int {
	return a.value
}
