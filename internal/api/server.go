// Package api serves campaign data as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"daoup/internal/campaign"
	"daoup/internal/chain"
	"daoup/internal/model"
)

// UnexpectedMessage is returned when a handler panics.
const UnexpectedMessage = "Something went wrong. Please refresh the page."

// Campaigns is the read side the routes need.
type Campaigns interface {
	campaign.AddressSource
	campaign.Loader
	Featured(ctx context.Context) ([]string, error)
}

// ActionHistory returns a campaign's actions, newest first.
type ActionHistory interface {
	Actions(ctx context.Context, campaign string) ([]model.Action, error)
}

// LiveList is a loaded campaign list refiltered on input.
type LiveList interface {
	Result() campaign.ListResult
	SetFilter(filter string)
	Generation() uint64
}

// Recorder receives request outcomes and unexpected errors.
type Recorder interface {
	RecordRequest(route string, status int)
	Report(source string, err error)
}

// Config tunes the server.
type Config struct {
	Bech32Prefix string
	Concurrency  int
	// Live backs /list when set.
	Live LiveList
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Server routes campaign requests.
type Server struct {
	campaigns Campaigns
	history   ActionHistory
	balances  campaign.BalanceReader
	recorder  Recorder
	cfg       Config
	logger    *zap.Logger
	mux       *http.ServeMux
}

// NewServer builds the route table. history and recorder may be nil.
func NewServer(campaigns Campaigns, history ActionHistory, balances campaign.BalanceReader, recorder Recorder, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		campaigns: campaigns,
		history:   history,
		balances:  balances,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.handle("GET /campaigns", "campaigns", s.listCampaigns)
	s.handle("GET /campaign/{address}", "campaign", s.getCampaign)
	s.handle("GET /me", "me", s.walletCampaigns)
	s.handle("GET /featured", "featured", s.featured)
	s.handle("GET /healthz", "healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Live != nil {
		s.handle("GET /list", "list", s.liveList)
		s.handle("POST /list/filter", "list_filter", s.setLiveFilter)
	}
	if cfg.Metrics != nil {
		s.mux.Handle("GET /metrics", cfg.Metrics)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handle(pattern, route string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, s.recoverPanic(route, fn))
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wrote {
		w.status = status
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.status = http.StatusOK
		w.wrote = true
	}
	return w.ResponseWriter.Write(b)
}

// recoverPanic turns a panic into the generic error body and records the request.
func (s *Server) recoverPanic(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if recovered := recover(); recovered != nil {
				err := fmt.Errorf("panic: %v", recovered)
				s.logger.Error("handler panic",
					zap.String("route", route),
					zap.String("path", r.URL.Path),
					zap.Any("panic", recovered),
					zap.ByteString("stack", debug.Stack()),
				)
				if s.recorder != nil {
					s.recorder.Report("api."+route, err)
				}
				if !sw.wrote {
					writeError(sw, http.StatusInternalServerError, UnexpectedMessage)
				}
			}
			if s.recorder != nil {
				s.recorder.RecordRequest(route, sw.status)
			}
		}()
		next.ServeHTTP(sw, r)
	})
}

type listResponse struct {
	Campaigns []model.Campaign `json:"campaigns"`
	Total     int              `json:"total"`
	Error     string           `json:"error,omitempty"`
}

func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := campaign.DefaultListOptions()
	var err error
	if opts.IncludeHidden, err = boolParam(q.Get("include_hidden"), opts.IncludeHidden); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if opts.IncludePending, err = boolParam(q.Get("include_pending"), opts.IncludePending); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	size, err := intParam(q.Get("size"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	campaigns, err := s.visible(r.Context(), opts)
	if err != nil && campaigns == nil {
		s.writeLoadError(w, "campaigns", err)
		return
	}

	filtered := campaign.FilterCampaigns(campaigns, q.Get("filter"))
	resp := listResponse{Campaigns: filtered, Total: len(filtered)}
	if size > 0 {
		resp.Campaigns = campaign.Page(filtered, page, size)
	}
	if err != nil {
		resp.Error = campaign.ErrorMessage(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// visible loads every registered campaign. A nil slice with an error means the
// registry itself failed; otherwise err is the first per-address failure.
func (s *Server) visible(ctx context.Context, opts campaign.ListOptions) ([]model.Campaign, error) {
	addresses, err := s.campaigns.Addresses(ctx)
	if err != nil {
		return nil, err
	}
	responses := campaign.FetchAll(ctx, s.campaigns, addresses, s.cfg.Concurrency)
	for _, resp := range responses {
		if resp.Err != nil {
			s.logger.Warn("campaign load failed", zap.String("campaign", resp.Address), zap.Error(resp.Err))
		}
	}
	return campaign.FromResponses(responses, opts.IncludeHidden, opts.IncludePending),
		campaign.FirstError(nil, nil, responses)
}

type liveResponse struct {
	campaign.ListResult
	Generation uint64 `json:"generation"`
}

func (s *Server) liveList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, liveResponse{ListResult: s.cfg.Live.Result(), Generation: s.cfg.Live.Generation()})
}

// setLiveFilter schedules a refilter. The result is published after the debounce.
func (s *Server) setLiveFilter(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.cfg.Live.SetFilter(r.Form.Get("filter"))
	writeJSON(w, http.StatusAccepted, map[string]string{"filter": r.Form.Get("filter")})
}

type campaignResponse struct {
	Campaign      model.Campaign  `json:"campaign"`
	PercentFunded float64         `json:"percent_funded"`
	Actions       []model.Action  `json:"actions"`
	Cumulative    []float64       `json:"cumulative"`
	Stats         *campaign.Stats `json:"stats,omitempty"`
	ActionsError  string          `json:"actions_error,omitempty"`
}

func (s *Server) getCampaign(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if err := chain.ValidateAddress(address, s.cfg.Bech32Prefix); err != nil {
		writeError(w, http.StatusBadRequest, chain.Message(err, nil))
		return
	}

	c, err := s.campaigns.Campaign(r.Context(), address)
	if err != nil {
		s.writeLoadError(w, "campaign", err)
		return
	}

	resp := campaignResponse{
		Campaign:      c,
		PercentFunded: c.PercentFunded(),
		Actions:       []model.Action{},
		Cumulative:    []float64{0},
	}
	if s.history != nil {
		actions, err := s.history.Actions(r.Context(), address)
		if err != nil {
			s.logger.Warn("campaign actions failed", zap.String("campaign", address), zap.Error(err))
			resp.ActionsError = chain.Message(err, nil)
		} else {
			stats := campaign.Summarize(actions)
			resp.Actions = actions
			resp.Cumulative = model.CumulativeTotals(actions)
			resp.Stats = &stats
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) walletCampaigns(w http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet is required")
		return
	}
	if err := chain.ValidateAddress(wallet, s.cfg.Bech32Prefix); err != nil {
		writeError(w, http.StatusBadRequest, chain.Message(err, nil))
		return
	}

	opts := campaign.ListOptions{IncludeHidden: true, IncludePending: true}
	campaigns, err := s.visible(r.Context(), opts)
	if err != nil && campaigns == nil {
		s.writeLoadError(w, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, campaign.ForWallet(r.Context(), s.balances, campaigns, wallet, s.cfg.Concurrency, s.logger))
}

func (s *Server) featured(w http.ResponseWriter, r *http.Request) {
	addresses, err := s.campaigns.Featured(r.Context())
	if err != nil {
		s.writeLoadError(w, "featured", err)
		return
	}
	responses := campaign.FetchAll(r.Context(), s.campaigns, addresses, s.cfg.Concurrency)
	resp := listResponse{Campaigns: campaign.FromResponses(responses, false, false)}
	resp.Total = len(resp.Campaigns)
	if err := campaign.FirstError(nil, nil, responses); err != nil {
		resp.Error = campaign.ErrorMessage(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeLoadError(w http.ResponseWriter, route string, err error) {
	status := loadStatus(err)
	if status == http.StatusInternalServerError && s.recorder != nil {
		s.recorder.Report("api."+route, err)
	}
	s.logger.Warn("request failed", zap.String("route", route), zap.Error(err))
	writeError(w, status, campaign.ErrorMessage(err))
}

func loadStatus(err error) int {
	if errors.Is(err, campaign.ErrIncompleteState) || errors.Is(err, campaign.ErrUnrecognizedStatus) {
		return http.StatusNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch chain.Classify(err) {
	case chain.CodeNotFound, chain.CodeInvalidAddress:
		return http.StatusNotFound
	case chain.CodeNetwork, chain.CodeNodeFailure, chain.CodeInvalidJSONResponse, chain.CodeGetClientFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func boolParam(value string, fallback bool) (bool, error) {
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", value)
	}
	return b, nil
}

func intParam(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", value)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// NewHTTPServer wraps handler with the timeouts used by daoup serve.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
}
