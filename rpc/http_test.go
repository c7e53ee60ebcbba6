package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"settlenet/core"
	"settlenet/native/oracle"
	"settlenet/native/venue"
	"settlenet/storage"
)

const testToken = "secret-token"

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	feed := oracle.NewManualFeed()
	now := time.Now()
	require.NoError(t, feed.SetDecimal("AAA", "1", now))
	require.NoError(t, feed.SetDecimal("BBB", "1", now))
	venues := venue.NewRegistry()
	venues.Register(venue.NewConstantProductAdapter("cp-aaa-bbb", nil))
	node := core.NewNode(core.NodeConfig{
		DB:       storage.NewMemDB(),
		Venues:   venues,
		Oracle:   feed,
		Manual:   feed,
		Custody:  addr(0xC0),
		Treasury: addr(0xC1),
	})
	require.NoError(t, node.Seed(&core.Genesis{
		Tokens: []core.GenesisToken{
			{Symbol: "AAA", Name: "Token A", Decimals: 6},
			{Symbol: "BBB", Name: "Token B", Decimals: 6},
		},
		Accounts: []core.GenesisAccount{
			{Address: addr(1), Token: "AAA", Amount: big.NewInt(50_000)},
		},
		Sellers: []common.Address{addr(9)},
		ConstantProductPools: []*venue.ConstantProductPool{{
			ID:             "cp-aaa-bbb",
			TokenA:         "AAA",
			TokenB:         "BBB",
			ReserveA:       big.NewInt(1_000_000),
			ReserveB:       big.NewInt(1_000_000),
			FeeNumerator:   3,
			FeeDenominator: 1000,
		}},
	}))
	return NewServer(node, testToken, nil)
}

func call(t *testing.T, s *Server, body string, headers map[string]string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:55000"
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	s.handle(recorder, req)
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return recorder, resp
}

func TestExecuteBatchRPC(t *testing.T) {
	s := newTestServer(t)
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"swap_executeBatch","params":[{"requests":[{"sender":"%s","amountIn":"10000","path":["AAA","BBB"],"venues":["cp-aaa-bbb"]}]}]}`, addr(1).Hex())
	recorder, resp := call(t, s, body, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)
	payload, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result BatchResult
	require.NoError(t, json.Unmarshal(payload, &result))
	require.Equal(t, []bool{true}, result.Outcomes)
}

func TestExecuteBatchRejectsUnknownVenue(t *testing.T) {
	s := newTestServer(t)
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"swap_executeBatch","params":[{"requests":[{"sender":"%s","amountIn":"10000","path":["AAA","BBB"],"venues":["nowhere"]}]}]}`, addr(1).Hex())
	_, resp := call(t, s, body, nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeServerError, resp.Error.Code)
}

func TestReferralRPCFlow(t *testing.T) {
	s := newTestServer(t)
	register := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"referral_register","params":[{"caller":"%s","referrer":"%s"}]}`, addr(1).Hex(), addr(9).Hex())
	_, resp := call(t, s, register, nil)
	require.Nil(t, resp.Error)

	lookup := fmt.Sprintf(`{"jsonrpc":"2.0","id":2,"method":"referral_getReferrer","params":[{"address":"%s"}]}`, addr(1).Hex())
	_, resp = call(t, s, lookup, nil)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, result["registered"])
	require.Equal(t, addr(9).Hex(), result["referrer"])

	// Re-registration is rejected.
	_, resp = call(t, s, register, nil)
	require.NotNil(t, resp.Error)
}

func TestGetPercentagesRPC(t *testing.T) {
	s := newTestServer(t)
	_, resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"referral_getPercentages","params":[]}`, nil)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	levels, ok := result["levels"].([]interface{})
	require.True(t, ok)
	require.Len(t, levels, 5)
	require.EqualValues(t, 350000, levels[0])
}

func TestPrivilegedMethodsRequireAuth(t *testing.T) {
	s := newTestServer(t)
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"referral_setApprovedSeller","params":[{"seller":"%s","approved":true}]}`, addr(5).Hex())
	recorder, resp := call(t, s, body, nil)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	recorder, resp = call(t, s, body, map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder, resp = call(t, s, body, map[string]string{"Authorization": "Bearer " + testToken})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)
}

func TestOracleSetPriceRPC(t *testing.T) {
	s := newTestServer(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"oracle_setPrice","params":[{"symbol":"AAA","rate":"2.5"}]}`
	_, resp := call(t, s, body, map[string]string{"Authorization": "Bearer " + testToken})
	require.Nil(t, resp.Error)

	bad := `{"jsonrpc":"2.0","id":2,"method":"oracle_setPrice","params":[{"symbol":"AAA","rate":"-1"}]}`
	_, resp = call(t, s, bad, map[string]string{"Authorization": "Bearer " + testToken})
	require.NotNil(t, resp.Error)
}

func TestMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	_, resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"swap_unknown","params":[]}`, nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}
