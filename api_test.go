package swap_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	swap "github.com/kaifufi/p2p-swap-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T, f *fixture) (*swap.APIClient, string) {
	t.Helper()
	srv := httptest.NewServer(swap.NewAPI(f.engine, nil))
	t.Cleanup(srv.Close)
	return swap.NewAPIClient(srv.URL), srv.URL
}

func TestAPIReadsEngineState(t *testing.T) {
	f := newFixture(t)
	f.approveStandard()
	client, _ := newAPIServer(t, f)
	ctx := context.Background()

	order := f.order(12345)
	_, err := f.engine.Swap(ctx, swap.Call{Sender: bob}, order, f.sign(t, f.aliceKey, order, swap.SignatureVersionTypedData))
	require.NoError(t, err)
	_, err = f.engine.Authorize(ctx, f.alice, f.carol, f.clock.Unix()+60)
	require.NoError(t, err)

	domain, err := client.GetDomain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SWAP", domain.Name)
	assert.Equal(t, "2", domain.Version)
	assert.Equal(t, engineAddress, domain.VerifyingContract)

	status, err := client.GetOrderStatus(ctx, f.alice, big.NewInt(12345))
	require.NoError(t, err)
	assert.Equal(t, swap.StatusFilled, status)

	status, err = client.GetOrderStatus(ctx, f.alice, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, swap.StatusOpen, status)

	grant, err := client.GetAuthorization(ctx, f.alice, f.carol)
	require.NoError(t, err)
	assert.True(t, grant.Active)
	assert.Equal(t, f.clock.Unix()+60, grant.Expiry)

	grant, err = client.GetAuthorization(ctx, f.carol, f.alice)
	require.NoError(t, err)
	assert.False(t, grant.Active)

	bal, err := client.GetBalance(ctx, astAddress, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal.Int64())

	allowance, err := client.GetAllowance(ctx, daiAddress, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), allowance.Int64())
}

func TestAPIErrors(t *testing.T) {
	f := newFixture(t)
	client, base := newAPIServer(t, f)
	ctx := context.Background()

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"bad address", "/v1/orders/not-an-address/1", http.StatusBadRequest, "INVALID_PARAM"},
		{"negative id", "/v1/orders/" + bob.Hex() + "/-1", http.StatusBadRequest, "INVALID_PARAM"},
		{"unknown token", "/v1/balances/0x0000000000000000000000000000000000000bad/" + bob.Hex(), http.StatusNotFound, "UNKNOWN_ASSET"},
		{"allowance on collectible", "/v1/allowances/" + kittyAddress.Hex() + "/" + bob.Hex(), http.StatusBadRequest, "INVALID_PARAM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(base + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body swap.APIResponse[json.RawMessage]
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Msg)
		})
	}

	_, err := client.GetBalance(ctx, kittyAddress, swap.NullAddress)
	assert.NoError(t, err)

	_, err = client.GetAllowance(ctx, kittyAddress, bob)
	assert.ErrorContains(t, err, "INVALID_PARAM")
}
