package swap

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// APIResponse is the envelope of every read API response
type APIResponse[T any] struct {
	Code   string `json:"code"`
	Msg    string `json:"msg,omitempty"`
	Result T      `json:"result,omitempty"`
}

type OrderStatusResult struct {
	Maker  common.Address `json:"maker"`
	ID     string         `json:"id"`
	Status string         `json:"status"`
}

type AuthorizationResult struct {
	Approver common.Address `json:"approver"`
	Delegate common.Address `json:"delegate"`
	Expiry   uint64         `json:"expiry"`
	Active   bool           `json:"active"`
}

type BalanceResult struct {
	Token   common.Address `json:"token"`
	Wallet  common.Address `json:"wallet"`
	Balance string         `json:"balance"`
}

type AllowanceResult struct {
	Token     common.Address `json:"token"`
	Owner     common.Address `json:"owner"`
	Spender   common.Address `json:"spender"`
	Allowance string         `json:"allowance"`
}

type DomainResult struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	VerifyingContract common.Address `json:"verifyingContract"`
}

// API serves the engine's side-effect-free queries as JSON
type API struct {
	engine *Engine
	log    *zap.Logger
	mux    *http.ServeMux
}

// NewAPI creates the read API for engine
func NewAPI(engine *Engine, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	a := &API{engine: engine, log: log, mux: http.NewServeMux()}
	a.mux.HandleFunc("GET /v1/domain", a.getDomain)
	a.mux.HandleFunc("GET /v1/orders/{maker}/{id}", a.getOrderStatus)
	a.mux.HandleFunc("GET /v1/authorizations/{approver}/{delegate}", a.getAuthorization)
	a.mux.HandleFunc("GET /v1/balances/{token}/{wallet}", a.getBalance)
	a.mux.HandleFunc("GET /v1/allowances/{token}/{owner}", a.getAllowance)
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) getDomain(w http.ResponseWriter, r *http.Request) {
	d := a.engine.Domain()
	writeResult(w, DomainResult{Name: d.Name, Version: d.Version, VerifyingContract: d.VerifyingContract})
}

func (a *API) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	maker, err := ParseAddress(r.PathValue("maker"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	id, err := ParseParam(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeResult(w, OrderStatusResult{
		Maker:  maker,
		ID:     id.String(),
		Status: a.engine.StatusOf(maker, id).String(),
	})
}

func (a *API) getAuthorization(w http.ResponseWriter, r *http.Request) {
	approver, err := ParseAddress(r.PathValue("approver"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	delegate, err := ParseAddress(r.PathValue("delegate"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	grant, _ := a.engine.Authorization(approver, delegate)
	writeResult(w, AuthorizationResult{
		Approver: approver,
		Delegate: delegate,
		Expiry:   grant.Expiry,
		Active:   a.engine.IsAuthorized(approver, delegate),
	})
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	token, err := ParseAddress(r.PathValue("token"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	wallet, err := ParseAddress(r.PathValue("wallet"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	balance, err := a.engine.BalanceOf(r.Context(), token, wallet)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeResult(w, BalanceResult{Token: token, Wallet: wallet, Balance: balance.String()})
}

func (a *API) getAllowance(w http.ResponseWriter, r *http.Request) {
	token, err := ParseAddress(r.PathValue("token"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	owner, err := ParseAddress(r.PathValue("owner"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	allowance, err := a.engine.AllowanceOf(r.Context(), token, owner)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeResult(w, AllowanceResult{
		Token:     token,
		Owner:     owner,
		Spender:   a.engine.Address(),
		Allowance: allowance.String(),
	})
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var paramErr *InvalidParamError
	switch {
	case errors.As(err, &paramErr):
		status = http.StatusBadRequest
	case errors.Is(err, ErrUnknownAsset), errors.Is(err, ErrNativeUnsupported):
		status = http.StatusNotFound
	default:
		a.log.Error("read api failure", zap.Error(err))
	}
	writeJSON(w, status, APIResponse[any]{Code: ErrorCode(err), Msg: err.Error()})
}

func writeResult[T any](w http.ResponseWriter, result T) {
	writeJSON(w, http.StatusOK, APIResponse[T]{Code: ErrorCode(nil), Result: result})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
