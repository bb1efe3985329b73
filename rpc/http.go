package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fundvault/core/events"
	"fundvault/native/campaign"
	"fundvault/native/token"
	"fundvault/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 30
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRejected       = -32010
	codeRateLimited    = -32020
)

// AuthTokenEnv names the environment variable carrying the bearer token
// required for state-mutating methods.
const AuthTokenEnv = "FUNDVAULT_RPC_TOKEN"

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server is the JSON-RPC front-end over the campaign registry.
type Server struct {
	registry *campaign.Registry
	tokens   *token.Registry
	hub      *events.Hub

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	authToken    string
	nowFn        func() time.Time
}

// NewServer constructs an RPC server. The auth token is read from the
// environment; when empty, mutating methods are rejected.
func NewServer(registry *campaign.Registry, tokens *token.Registry, hub *events.Hub) *Server {
	return &Server{
		registry:     registry,
		tokens:       tokens,
		hub:          hub,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    strings.TrimSpace(os.Getenv(AuthTokenEnv)),
		nowFn:        time.Now,
	}
}

// Handler returns the HTTP handler serving the RPC endpoint, the metrics
// endpoint and the websocket event stream.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &rpcError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &rpcRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}

	method := strings.TrimSpace(req.Method)
	handler, ok := s.routes()[method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return
	}

	if handler.mutating {
		if !s.authorized(r) {
			observability.Metrics().ObserveError(method, "unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid bearer token", nil)
			return
		}
		if !s.allowRequest(clientIP(r)) {
			observability.Metrics().ObserveError(method, "rate_limited")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	started := s.nowFn()
	result, rpcErr := handler.fn(req.Params)
	took := s.nowFn().Sub(started)
	if rpcErr != nil {
		observability.Metrics().ObserveRequest(method, "error", took)
		observability.Metrics().ObserveError(method, fmt.Sprintf("%d", rpcErr.Code))
		writeError(w, rpcErr.status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	observability.Metrics().ObserveRequest(method, "ok", took)
	writeResult(w, req.ID, result)
}

type handlerError struct {
	rpcError
	status int
}

type methodHandler struct {
	fn       func(json.RawMessage) (interface{}, *handlerError)
	mutating bool
}

func (s *Server) routes() map[string]methodHandler {
	return map[string]methodHandler{
		"campaign_create":           {fn: s.handleCampaignCreate, mutating: true},
		"campaign_pledge":           {fn: s.handleCampaignPledge, mutating: true},
		"campaign_vote":             {fn: s.handleCampaignVote, mutating: true},
		"campaign_release":          {fn: s.handleCampaignRelease, mutating: true},
		"campaign_claimFunds":       {fn: s.handleCampaignClaimFunds, mutating: true},
		"campaign_claimRefund":      {fn: s.handleCampaignClaimRefund, mutating: true},
		"campaign_setCourseSale":    {fn: s.handleCampaignSetCourseSale, mutating: true},
		"campaign_purchase":         {fn: s.handleCampaignPurchase, mutating: true},
		"campaign_withdrawRevenue":  {fn: s.handleCampaignWithdrawRevenue, mutating: true},
		"campaign_checkStatus":      {fn: s.handleCampaignCheckStatus, mutating: true},
		"campaign_get":              {fn: s.handleCampaignGet},
		"campaign_milestones":       {fn: s.handleCampaignMilestones},
		"campaign_backer":           {fn: s.handleCampaignBacker},
		"token_create":              {fn: s.handleTokenCreate, mutating: true},
		"token_mint":                {fn: s.handleTokenMint, mutating: true},
		"token_approve":             {fn: s.handleTokenApprove, mutating: true},
		"token_balance":             {fn: s.handleTokenBalance},
		"admin_allowAsset":          {fn: s.handleAdminAllowAsset, mutating: true},
		"admin_setPlatformWallet":   {fn: s.handleAdminSetPlatformWallet, mutating: true},
		"admin_setPlatformShare":    {fn: s.handleAdminSetPlatformShare, mutating: true},
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.authToken)) == 1
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allowRequest(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	limiter, ok := s.rateLimiters[source]
	if !ok || now.Sub(limiter.windowStart) >= rateLimitWindow {
		s.rateLimiters[source] = &rateLimiter{count: 1, windowStart: now}
		return true
	}
	if limiter.count >= maxTxPerWindow {
		return false
	}
	limiter.count++
	return true
}

func invalidParams(message string, data interface{}) *handlerError {
	return &handlerError{rpcError: rpcError{Code: codeInvalidParams, Message: message, Data: data}, status: http.StatusBadRequest}
}

func rejected(err error) *handlerError {
	return &handlerError{rpcError: rpcError{Code: codeRejected, Message: err.Error()}, status: http.StatusConflict}
}

func serverError(err error) *handlerError {
	return &handlerError{rpcError: rpcError{Code: codeServerError, Message: err.Error()}, status: http.StatusInternalServerError}
}

// domainError maps engine rejections onto stable RPC error codes. Precondition
// and invariant-protection rejections surface as codeRejected with the
// descriptive reason; everything else is a server error.
func domainError(err error) *handlerError {
	switch {
	case errors.Is(err, campaign.ErrCampaignNotFound),
		errors.Is(err, campaign.ErrMilestoneNotFound),
		errors.Is(err, token.ErrAssetNotFound),
		errors.Is(err, token.ErrIssuerNotFound):
		return &handlerError{rpcError: rpcError{Code: codeInvalidParams, Message: err.Error()}, status: http.StatusNotFound}
	case errors.Is(err, campaign.ErrInvalidAmount),
		errors.Is(err, campaign.ErrFundingClosed),
		errors.Is(err, campaign.ErrWrongState),
		errors.Is(err, campaign.ErrNotCreator),
		errors.Is(err, campaign.ErrNotAdmin),
		errors.Is(err, campaign.ErrNoContribution),
		errors.Is(err, campaign.ErrAlreadyClaimed),
		errors.Is(err, campaign.ErrAlreadyVoted),
		errors.Is(err, campaign.ErrAlreadyReleased),
		errors.Is(err, campaign.ErrMilestonesPending),
		errors.Is(err, campaign.ErrNothingToClaim),
		errors.Is(err, campaign.ErrNothingToWithdraw),
		errors.Is(err, campaign.ErrNoRevenue),
		errors.Is(err, campaign.ErrInsufficientApproval),
		errors.Is(err, campaign.ErrLiabilityExceeded),
		errors.Is(err, campaign.ErrSaleNotConfigured),
		errors.Is(err, campaign.ErrPriceMismatch),
		errors.Is(err, campaign.ErrReceiptMintFailed),
		errors.Is(err, campaign.ErrIssuerNotOwned),
		errors.Is(err, campaign.ErrAssetNotAllowed),
		errors.Is(err, campaign.ErrPlatformShareTooLow),
		errors.Is(err, campaign.ErrReentrantCall),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, token.ErrNotOwner),
		errors.Is(err, token.ErrAssetExists):
		return rejected(err)
	default:
		return serverError(err)
	}
}
