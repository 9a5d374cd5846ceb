// Package api exposes the ledger/matcher surface over REST. All
// endpoints are request/response; no streaming.
package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/signbook/signbook/pkg/book"
	"github.com/signbook/signbook/pkg/chain"
	"github.com/signbook/signbook/pkg/util"
)

// Server handles REST requests against the order book.
type Server struct {
	ledger    *book.Ledger
	validator *book.Validator
	matcher   *book.Matcher
	avail     *book.Availability
	recon     *book.Reconciler
	clock     util.Clock

	router *mux.Router
	log    *zap.SugaredLogger
}

// NewServer creates a new API server over the book components.
func NewServer(ledger *book.Ledger, validator *book.Validator, matcher *book.Matcher, avail *book.Availability, recon *book.Reconciler, clock util.Clock, log *zap.SugaredLogger) *Server {
	s := &Server{
		ledger:    ledger,
		validator: validator,
		matcher:   matcher,
		avail:     avail,
		recon:     recon,
		clock:     clock,
		router:    mux.NewRouter(),
		log:       log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/available/{token}/{maker}", s.handleAvailable).Methods("GET")
	api.HandleFunc("/orders", s.handleInsertOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleLookupOrder).Methods("GET")
	api.HandleFunc("/book/{bookToken}/{execToken}", s.handleLookupPair).Methods("GET")
	api.HandleFunc("/prepare", s.handlePrepare).Methods("POST")
	api.HandleFunc("/reconcile", s.handleReconcile).Methods("POST")
	api.HandleFunc("/invalidate", s.handleInvalidate).Methods("POST")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the API server
func (s *Server) Start(addr string, allowedOrigins []string) error {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token, err := parseAddress(vars["token"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	maker, err := parseAddress(vars["maker"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	available, err := s.avail.Available(r.Context(), token, maker)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, AvailableInfo{
		BookToken: token.Hex(),
		Maker:     maker.Hex(),
		Available: available.String(),
	})
}

func (s *Server) handleInsertOrder(w http.ResponseWriter, r *http.Request) {
	var payload OrderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := payload.toOrder()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	admitted, err := s.validator.Admit(r.Context(), order)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, orderInfo(admitted))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	maker, err := parseAddress(r.URL.Query().Get("maker"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	orders := s.ledger.Orders(maker)
	out := make([]OrderInfo, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderInfo(o))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLookupOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	order := s.ledger.ByID(id)
	if order == nil {
		s.writeError(w, http.StatusNotFound, book.ErrUnknownOrder)
		return
	}
	s.writeJSON(w, http.StatusOK, orderInfo(order))
}

func (s *Server) handleLookupPair(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookToken, err := parseAddress(vars["bookToken"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	execToken, err := parseAddress(vars["execToken"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	orders := s.ledger.PairOrders(bookToken, execToken)
	out := make([]OrderInfo, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderInfo(o))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	bookToken, err := parseAddress(req.BookToken)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	execToken, err := parseAddress(req.ExecToken)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	requiredBook, err := parseBig(req.RequiredBookAmount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	requiredExec, err := parseBig(req.RequiredExecAmount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	plan, err := s.matcher.Prepare(r.Context(), bookToken, execToken, requiredBook, requiredExec)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, PlanInfo{Plan: planInfo(plan)})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeOrderIDs(w, r)
	if !ok {
		return
	}
	if err := s.recon.Reconcile(r.Context(), ids, util.NowMs(s.clock)); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeOrderIDs(w, r)
	if !ok {
		return
	}
	if err := s.recon.Invalidate(ids); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func (s *Server) decodeOrderIDs(w http.ResponseWriter, r *http.Request) ([]common.Hash, bool) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	ids := make([]common.Hash, 0, len(req.OrderIDs))
	for _, raw := range req.OrderIDs {
		id, err := parseHash(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorw("response_encode_failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// statusFor maps the book's error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, book.ErrUnknownOrder):
		return http.StatusNotFound
	case errors.Is(err, book.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, book.ErrInvalidToken),
		errors.Is(err, book.ErrInvalidAmount),
		errors.Is(err, book.ErrInvalidSalt),
		errors.Is(err, book.ErrOrderIDMismatch),
		errors.Is(err, book.ErrSignerMismatch),
		errors.Is(err, book.ErrInactiveOrder):
		return http.StatusBadRequest
	case errors.Is(err, chain.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.New("invalid address: " + s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, errors.New("invalid order id: " + s)
	}
	return common.BytesToHash(b), nil
}

func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("invalid amount: " + s)
	}
	return n, nil
}

func (p OrderPayload) toOrder() (*book.Order, error) {
	orderID, err := parseHash(p.OrderID)
	if err != nil {
		return nil, err
	}
	bookToken, err := parseAddress(p.BookToken)
	if err != nil {
		return nil, err
	}
	execToken, err := parseAddress(p.ExecToken)
	if err != nil {
		return nil, err
	}
	maker, err := parseAddress(p.Maker)
	if err != nil {
		return nil, err
	}
	bookAmount, err := parseBig(p.BookAmount)
	if err != nil {
		return nil, err
	}
	execAmount, err := parseBig(p.ExecAmount)
	if err != nil {
		return nil, err
	}
	orderSalt, err := parseBig(p.Salt)
	if err != nil {
		return nil, err
	}
	signature, err := hexutil.Decode(p.Signature)
	if err != nil {
		return nil, errors.New("invalid signature: " + p.Signature)
	}

	return &book.Order{
		OrderID:    orderID,
		BookToken:  bookToken,
		ExecToken:  execToken,
		BookAmount: bookAmount,
		ExecAmount: execAmount,
		Maker:      maker,
		Salt:       orderSalt,
		Signature:  signature,
	}, nil
}

func orderInfo(o *book.Order) OrderInfo {
	return OrderInfo{
		OrderID:        o.OrderID.Hex(),
		BookToken:      o.BookToken.Hex(),
		ExecToken:      o.ExecToken.Hex(),
		BookAmount:     o.BookAmount.String(),
		ExecAmount:     o.ExecAmount.String(),
		Maker:          o.Maker.Hex(),
		Salt:           o.Salt.String(),
		Signature:      hexutil.Encode(o.Signature),
		FreeBookAmount: o.FreeBookAmount.String(),
		Price:          o.Price.String(),
		Time:           o.Time,
		StartTime:      o.StartTime,
		EndTime:        o.EndTime,
	}
}

func planInfo(plan *book.PreparedExecution) *PreparedExecutionInfo {
	if plan == nil {
		return nil
	}
	out := &PreparedExecutionInfo{
		BookToken:              plan.BookToken.Hex(),
		ExecToken:              plan.ExecToken.Hex(),
		LastRequiredBookAmount: plan.LastRequiredBookAmount.String(),
	}
	for i := range plan.OrderIDs {
		out.OrderIDs = append(out.OrderIDs, plan.OrderIDs[i].Hex())
		out.BookAmounts = append(out.BookAmounts, plan.BookAmounts[i].String())
		out.ExecAmounts = append(out.ExecAmounts, plan.ExecAmounts[i].String())
		out.Makers = append(out.Makers, plan.Makers[i].Hex())
		out.Salts = append(out.Salts, plan.Salts[i].String())
		out.Signatures = append(out.Signatures, hexutil.Encode(plan.Signatures[i]))
	}
	return out
}
