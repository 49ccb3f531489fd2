package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendhub/crypto"
	"lendhub/gateway/middleware"
	"lendhub/native/oracle"
	lendingsvc "lendhub/services/lending"
	"lendhub/storage"
)

const secret = "routes-secret"

type apiFixture struct {
	server   *httptest.Server
	operator crypto.Address
	alice    crypto.Address
	lp       crypto.Address
}

func address(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0xbe
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{operator: address(1), alice: address(2), lp: address(3)}
	svc, err := lendingsvc.New(storage.NewMemDB(), lendingsvc.Options{
		Router:   crypto.ModuleAddress(lendingsvc.DefaultRouterName),
		Operator: f.operator,
		Rounds:   lendingsvc.NewManualRounds(5),
		Manual:   oracle.NewManualFeed(),
	})
	require.NoError(t, err)
	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: secret}, nil)
	require.NoError(t, err)
	handler, err := New(Config{Service: svc, Authenticator: auth})
	require.NoError(t, err)
	f.server = httptest.NewServer(handler)
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) token(t *testing.T, who crypto.Address, scopes ...string) string {
	t.Helper()
	token, err := middleware.SignToken(secret, "", "", who, scopes, time.Minute)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	out := map[string]interface{}{}
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res.StatusCode, out
}

func poolParams() map[string]interface{} {
	return map[string]interface{}{
		"rates": map[string]interface{}{
			"baseRate":           2000,
			"slope1":             4000,
			"slope2":             75000,
			"optimalUtilisation": 80000,
			"reserveFactor":      10000,
		},
		"risk": map[string]interface{}{
			"liquidationThreshold": 80000,
			"loanToValue":          75000,
			"liquidationBonus":     5000,
		},
		"roundsPerYear": 100,
	}
}

func (f *apiFixture) bootstrap(t *testing.T) {
	t.Helper()
	admin := f.token(t, f.operator, middleware.ScopeAdmin)
	for _, asset := range []string{"USDC-123456", "WETH-abcdef"} {
		status, body := f.do(t, http.MethodPost, "/v1/admin/pools", admin, map[string]interface{}{"asset": asset, "params": poolParams()})
		require.Equal(t, http.StatusCreated, status, body)
	}
	status, _ := f.do(t, http.MethodPut, "/v1/admin/prices/USDC-123456", admin, map[string]interface{}{"price": "1"})
	require.Equal(t, http.StatusNoContent, status)
	status, _ = f.do(t, http.MethodPut, "/v1/admin/prices/WETH-abcdef", admin, map[string]interface{}{"price": "2000"})
	require.Equal(t, http.StatusNoContent, status)
	status, _ = f.do(t, http.MethodPost, "/v1/admin/credit", admin, map[string]interface{}{"address": f.lp.String(), "asset": "USDC-123456", "amount": "100000"})
	require.Equal(t, http.StatusNoContent, status)
	status, _ = f.do(t, http.MethodPost, "/v1/admin/credit", admin, map[string]interface{}{"address": f.alice.String(), "asset": "WETH-abcdef", "amount": "10"})
	require.Equal(t, http.StatusNoContent, status)
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	res, err := f.server.Client().Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestBorrowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.bootstrap(t)

	lp := f.token(t, f.lp)
	status, body := f.do(t, http.MethodPost, "/v1/market/enter", lp, nil)
	require.Equal(t, http.StatusCreated, status, body)
	lpAccount := body["account"].(float64)
	status, body = f.do(t, http.MethodPost, "/v1/collateral/add", lp, map[string]interface{}{
		"account": lpAccount,
		"payment": map[string]interface{}{"asset": "USDC-123456", "amount": "50000"},
	})
	require.Equal(t, http.StatusOK, status, body)

	alice := f.token(t, f.alice)
	status, body = f.do(t, http.MethodPost, "/v1/market/enter", alice, nil)
	require.Equal(t, http.StatusCreated, status, body)
	aliceAccount := body["account"].(float64)
	status, body = f.do(t, http.MethodPost, "/v1/collateral/add", alice, map[string]interface{}{
		"account": aliceAccount,
		"payment": map[string]interface{}{"asset": "WETH-abcdef", "amount": "10"},
	})
	require.Equal(t, http.StatusOK, status, body)

	status, body = f.do(t, http.MethodPost, "/v1/borrow", alice, map[string]interface{}{
		"account":         aliceAccount,
		"collateralAsset": "WETH-abcdef",
		"asset":           "USDC-123456",
		"amount":          "15000",
	})
	require.Equal(t, http.StatusUnprocessableEntity, status, body)

	status, body = f.do(t, http.MethodPost, "/v1/borrow", alice, map[string]interface{}{
		"account":         aliceAccount,
		"collateralAsset": "WETH-abcdef",
		"asset":           "USDC-123456",
		"amount":          "10000",
	})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "10000", body["amount"])

	status, body = f.do(t, http.MethodGet, "/v1/pools/USDC-123456", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "40000", body["reserves"])
	require.Equal(t, "10000", body["totalBorrowed"])

	status, body = f.do(t, http.MethodGet, "/v1/accounts/2/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "20000", body["collateralValue"])
	require.Equal(t, false, body["liquidatable"])

	status, body = f.do(t, http.MethodGet, "/v1/balances/"+f.alice.String()+"/USDC-123456", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "10000", body["balance"])

	status, body = f.do(t, http.MethodGet, "/v1/pools/\uFF35\uFF33\uFF24\uFF23-123456", "", nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "USDC-123456", body["asset"])
}

func TestAuthenticationAndAdminChecks(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(t, http.MethodPost, "/v1/market/enter", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	plain := f.token(t, f.operator)
	status, _ = f.do(t, http.MethodPost, "/v1/admin/pools", plain, map[string]interface{}{"asset": "USDC-123456", "params": poolParams()})
	require.Equal(t, http.StatusForbidden, status)

	impostor := f.token(t, f.alice, middleware.ScopeAdmin)
	status, body := f.do(t, http.MethodPost, "/v1/admin/pools", impostor, map[string]interface{}{"asset": "USDC-123456", "params": poolParams()})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "operator only", body["error"])
}

func TestMalformedRequests(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.token(t, f.alice)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/v1/repay", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+alice)
	res, err := f.server.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	status, _ := f.do(t, http.MethodPost, "/v1/borrow", alice, map[string]interface{}{"account": 1, "asset": "USDC-123456", "amount": "ten"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodGet, "/v1/accounts/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodGet, "/v1/debt/9", "", nil)
	require.Equal(t, http.StatusNotFound, status)
}
