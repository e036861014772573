package apiserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/basktfi/backend/internal/metastore"
)

func (s *Service) handleAssetsRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	respondEnvelope(s, w, s.querier.GetAllAssets(r.Context()))
}

// Subroutes: /api/v1/assets/{address}, /api/v1/assets/{address}/performance,
// /api/v1/assets/ticker/{ticker}.
func (s *Service) handleAssetsSubroutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/assets/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[0] == "ticker":
		respondEnvelope(s, w, s.querier.GetAssetByTicker(r.Context(), parts[1]))
	case len(parts) == 2 && parts[1] == "performance":
		respondEnvelope(s, w, s.querier.GetAssetPerformance(r.Context(), parts[0]))
	case len(parts) == 1 && parts[0] != "":
		respondEnvelope(s, w, s.querier.GetAssetByAddress(r.Context(), parts[0]))
	default:
		s.respondBadRequest(w, "unknown asset route")
	}
}

func (s *Service) handleBasktsRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	respondEnvelope(s, w, s.querier.GetAllBaskts(r.Context()))
}

// Subroutes: /api/v1/baskts/{id}, /api/v1/baskts/{id}/performance,
// POST /api/v1/baskts/{id}/resync.
func (s *Service) handleBasktsSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/baskts/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			s.respondMethodNotAllowed(w)
			return
		}
		respondEnvelope(s, w, s.querier.GetBasktByID(r.Context(), parts[0]))
	case len(parts) == 2 && parts[1] == "performance":
		if r.Method != http.MethodGet {
			s.respondMethodNotAllowed(w)
			return
		}
		respondEnvelope(s, w, s.querier.GetBasktPerformance(r.Context(), parts[0]))
	case len(parts) == 2 && parts[1] == "resync":
		if r.Method != http.MethodPost {
			s.respondMethodNotAllowed(w)
			return
		}
		respondEnvelope(s, w, s.querier.ResyncBaskt(r.Context(), parts[0]))
	default:
		s.respondBadRequest(w, "unknown baskt route")
	}
}

func (s *Service) handleOrdersRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	baskt := strings.TrimSpace(r.URL.Query().Get("baskt"))
	switch {
	case owner != "":
		respondEnvelope(s, w, s.querier.GetOrdersByOwner(r.Context(), owner))
	case baskt != "":
		respondEnvelope(s, w, s.querier.GetOrdersByBaskt(r.Context(), baskt))
	default:
		s.respondBadRequest(w, "owner or baskt query parameter is required")
	}
}

func (s *Service) handleOrdersSubroutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	orderPDA := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/orders/"), "/")
	if orderPDA == "" || strings.Contains(orderPDA, "/") {
		s.respondBadRequest(w, "unknown order route")
		return
	}
	respondEnvelope(s, w, s.querier.GetOrder(r.Context(), orderPDA))
}

func (s *Service) handlePositionsRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	baskt := strings.TrimSpace(r.URL.Query().Get("baskt"))
	switch {
	case owner != "":
		respondEnvelope(s, w, s.querier.GetPositionsByOwner(r.Context(), owner))
	case baskt != "":
		respondEnvelope(s, w, s.querier.GetPositionsByBaskt(r.Context(), baskt))
	default:
		s.respondBadRequest(w, "owner or baskt query parameter is required")
	}
}

type partialCloseRequest struct {
	OrderPDA   string    `json:"orderPda"`
	SizeClosed bigAmount `json:"sizeClosed"`
	ExitPrice  bigAmount `json:"exitPrice"`
	Pnl        bigAmount `json:"pnl"`
	Fees       bigAmount `json:"fees"`
	Payout     bigAmount `json:"payout"`
	Tx         string    `json:"tx"`
}

// Subroutes: /api/v1/positions/{pda}, POST /api/v1/positions/{pda}/close.
func (s *Service) handlePositionsSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/positions/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			s.respondMethodNotAllowed(w)
			return
		}
		respondEnvelope(s, w, s.querier.GetPosition(r.Context(), parts[0]))
	case len(parts) == 2 && parts[1] == "close":
		if r.Method != http.MethodPost {
			s.respondMethodNotAllowed(w)
			return
		}
		var req partialCloseRequest
		if err := decodeJSONBody(r, &req); err != nil {
			s.respondBadRequest(w, err.Error())
			return
		}
		settlement := metastore.SettlementRecord{
			OrderPDA:   metastore.NormalizeOrderPDA(req.OrderPDA),
			SizeClosed: req.SizeClosed.Int(),
			ExitPrice:  req.ExitPrice.Int(),
			Pnl:        req.Pnl.Int(),
			Fees:       req.Fees.Int(),
			Payout:     req.Payout.Int(),
			Tx:         req.Tx,
		}
		respondEnvelope(s, w, s.querier.RecordPartialClose(r.Context(), parts[0], settlement))
	default:
		s.respondBadRequest(w, "unknown position route")
	}
}

func (s *Service) handlePool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	respondEnvelope(s, w, s.querier.GetPool(r.Context()))
}

type poolActivityRequest struct {
	Provider      string    `json:"provider"`
	Amount        bigAmount `json:"amount"`
	LpTokens      bigAmount `json:"lpTokens"`
	FeeToTreasury bigAmount `json:"feeToTreasury"`
	FeeToBlp      bigAmount `json:"feeToBlp"`
	Tx            string    `json:"tx"`
}

// Subroutes: POST /api/v1/pool/resync, GET /api/v1/pool/apr,
// GET /api/v1/pool/activity, POST /api/v1/pool/deposit,
// POST /api/v1/pool/withdraw.
func (s *Service) handlePoolSubroutes(w http.ResponseWriter, r *http.Request) {
	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/pool/"), "/")
	switch action {
	case "resync":
		if r.Method != http.MethodPost {
			s.respondMethodNotAllowed(w)
			return
		}
		respondEnvelope(s, w, s.querier.ResyncPool(r.Context()))
	case "apr":
		if r.Method != http.MethodGet {
			s.respondMethodNotAllowed(w)
			return
		}
		days, err := parseOptionalInt(r, "days", 30)
		if err != nil {
			s.respondBadRequest(w, err.Error())
			return
		}
		respondEnvelope(s, w, s.querier.GetPoolAPR(r.Context(), days))
	case "activity":
		if r.Method != http.MethodGet {
			s.respondMethodNotAllowed(w)
			return
		}
		provider := strings.TrimSpace(r.URL.Query().Get("provider"))
		if provider == "" {
			s.respondBadRequest(w, "provider query parameter is required")
			return
		}
		respondEnvelope(s, w, s.querier.GetProviderActivity(r.Context(), provider))
	case "deposit", "withdraw":
		if r.Method != http.MethodPost {
			s.respondMethodNotAllowed(w)
			return
		}
		var req poolActivityRequest
		if err := decodeJSONBody(r, &req); err != nil {
			s.respondBadRequest(w, err.Error())
			return
		}
		if req.Provider == "" {
			s.respondBadRequest(w, "provider is required")
			return
		}
		if action == "deposit" {
			respondEnvelope(s, w, s.querier.RecordDeposit(r.Context(), req.Provider, req.Amount.Int(), req.LpTokens.Int(), req.FeeToTreasury.Int(), req.FeeToBlp.Int(), req.Tx))
			return
		}
		respondEnvelope(s, w, s.querier.RecordWithdrawal(r.Context(), req.Provider, req.Amount.Int(), req.LpTokens.Int(), req.FeeToTreasury.Int(), req.FeeToBlp.Int(), req.Tx))
	default:
		s.respondBadRequest(w, "unknown pool route")
	}
}

func (s *Service) handleWithdrawalsRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	respondEnvelope(s, w, s.querier.GetQueue(r.Context()))
}

type processingRequest struct {
	Tx              string    `json:"tx"`
	AmountProcessed bigAmount `json:"amountProcessed"`
	LpTokensBurned  bigAmount `json:"lpTokensBurned"`
}

// Subroutes: POST /api/v1/withdrawals/reconcile,
// GET /api/v1/withdrawals/user, POST /api/v1/withdrawals/{id}/processing.
func (s *Service) handleWithdrawalsSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/withdrawals/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] == "reconcile":
		if r.Method != http.MethodPost {
			s.respondMethodNotAllowed(w)
			return
		}
		respondEnvelope(s, w, s.querier.ReconcileQueue(r.Context()))
	case len(parts) == 1 && parts[0] == "user":
		if r.Method != http.MethodGet {
			s.respondMethodNotAllowed(w)
			return
		}
		provider := strings.TrimSpace(r.URL.Query().Get("provider"))
		if provider == "" {
			s.respondBadRequest(w, "provider query parameter is required")
			return
		}
		respondEnvelope(s, w, s.querier.GetUserRequest(r.Context(), provider))
	case len(parts) == 2 && parts[1] == "processing":
		if r.Method != http.MethodPost {
			s.respondMethodNotAllowed(w)
			return
		}
		requestID, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			s.respondBadRequest(w, "invalid request id")
			return
		}
		var req processingRequest
		if err := decodeJSONBody(r, &req); err != nil {
			s.respondBadRequest(w, err.Error())
			return
		}
		entry := metastore.ProcessingEntry{
			Tx:              req.Tx,
			AmountProcessed: req.AmountProcessed.Int(),
			LpTokensBurned:  req.LpTokensBurned.Int(),
		}
		respondEnvelope(s, w, s.querier.RecordProcessing(r.Context(), requestID, entry))
	default:
		s.respondBadRequest(w, "unknown withdrawal route")
	}
}

type feeEventRequest struct {
	EventType     string         `json:"eventType"`
	FeeToTreasury bigAmount      `json:"feeToTreasury"`
	FeeToBlp      bigAmount      `json:"feeToBlp"`
	FeeTotal      bigAmount      `json:"feeTotal"`
	Payload       map[string]any `json:"payload"`
	Tx            string         `json:"tx"`
}

func (s *Service) handleFees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondEnvelope(s, w, s.querier.GetLifetimeFeeStats(r.Context()))
	case http.MethodPost:
		var req feeEventRequest
		if err := decodeJSONBody(r, &req); err != nil {
			s.respondBadRequest(w, err.Error())
			return
		}
		if req.EventType == "" {
			s.respondBadRequest(w, "eventType is required")
			return
		}
		record := metastore.FeeEventRecord{
			EventType:     req.EventType,
			FeeToTreasury: req.FeeToTreasury.Int(),
			FeeToBlp:      req.FeeToBlp.Int(),
			FeeTotal:      req.FeeTotal.Int(),
			Payload:       req.Payload,
			Tx:            req.Tx,
		}
		respondEnvelope(s, w, s.querier.RecordFeeEvent(r.Context(), record))
	default:
		s.respondMethodNotAllowed(w)
	}
}

func (s *Service) handleOpenInterest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	baskt := strings.TrimSpace(r.URL.Query().Get("baskt"))
	respondEnvelope(s, w, s.querier.GetOpenInterest(r.Context(), baskt))
}

func (s *Service) handleVolume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	baskt := strings.TrimSpace(r.URL.Query().Get("baskt"))
	respondEnvelope(s, w, s.querier.GetVolume(r.Context(), baskt, from, to))
}

func (s *Service) handleBatchPerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("assets"))
	if raw == "" {
		s.respondBadRequest(w, "assets query parameter is required")
		return
	}
	addresses := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if address := strings.TrimSpace(part); address != "" {
			addresses = append(addresses, address)
		}
	}
	respondEnvelope(s, w, s.querier.GetBatchPerformance(r.Context(), addresses))
}

// Subroutes: /api/v1/prices/{address}/latest, /api/v1/prices/{address}/range.
func (s *Service) handlePricesSubroutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/prices/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		s.respondBadRequest(w, "unknown price route")
		return
	}
	address := parts[0]
	switch parts[1] {
	case "latest":
		respondEnvelope(s, w, s.querier.GetLatestPrice(r.Context(), address))
	case "range":
		from, err := parseTimeParam(r, "from")
		if err != nil {
			s.respondBadRequest(w, err.Error())
			return
		}
		to, err := parseTimeParam(r, "to")
		if err != nil {
			s.respondBadRequest(w, err.Error())
			return
		}
		if to.IsZero() {
			to = time.Now().UTC()
		}
		respondEnvelope(s, w, s.querier.GetPriceRange(r.Context(), address, from, to))
	default:
		s.respondBadRequest(w, "unknown price route")
	}
}

type registerWalletRequest struct {
	Address    string `json:"address"`
	AccessCode string `json:"accessCode"`
}

func (s *Service) handleWalletsRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}
	var req registerWalletRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondBadRequest(w, err.Error())
		return
	}
	if req.Address == "" {
		s.respondBadRequest(w, "address is required")
		return
	}
	respondEnvelope(s, w, s.querier.RegisterWallet(r.Context(), req.Address, req.AccessCode))
}

func (s *Service) handleWalletsSubroutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	address := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/wallets/"), "/")
	if address == "" || strings.Contains(address, "/") {
		s.respondBadRequest(w, "unknown wallet route")
		return
	}
	respondEnvelope(s, w, s.querier.GetWallet(r.Context(), address))
}
