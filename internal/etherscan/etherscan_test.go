package etherscan

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contractHex = "0x0ea6d458488d1cf51695e1d6e4744e6fb715d37c"

var contract = common.HexToAddress(contractHex)

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api" || q.Get("module") != "contract" || q.Get("action") != "getcontractcreation" ||
			q.Get("contractaddresses") != contractHex || q.Get("apikey") != "test_api_key" {
			http.Error(w, "unexpected request "+r.URL.String(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestContractCreationBlock(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{
  "status": "1",
  "message": "OK",
  "result": [{"contractAddress": "0x0ea6d458488d1cf51695e1d6e4744e6fb715d37c", "blockNumber": "12345678"}]
}`)

	n, err := New(srv.URL+"/", "test_api_key").ContractCreationBlock(context.Background(), contract)
	require.NoError(t, err)
	assert.EqualValues(t, 12345678, n)
}

func TestContractCreationBlockFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{
			name:    "status not ok",
			status:  http.StatusOK,
			body:    `{"status": "0", "message": "NOTOK", "result": "Invalid API Key"}`,
			wantMsg: "NOTOK",
		},
		{
			name:    "missing block number",
			status:  http.StatusOK,
			body:    `{"status": "1", "message": "OK", "result": [{"contractAddress": "0x0ea6"}]}`,
			wantMsg: "block number not found",
		},
		{
			name:    "empty result",
			status:  http.StatusOK,
			body:    `{"status": "1", "message": "OK", "result": []}`,
			wantMsg: "block number not found",
		},
		{
			name:    "unparseable block number",
			status:  http.StatusOK,
			body:    `{"status": "1", "message": "OK", "result": [{"blockNumber": "0x12"}]}`,
			wantMsg: "parse block number",
		},
		{
			name:    "malformed body",
			status:  http.StatusOK,
			body:    `not json`,
			wantMsg: "decode response",
		},
		{
			name:    "http error",
			status:  http.StatusBadGateway,
			body:    `{}`,
			wantMsg: "http status 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.body)
			_, err := New(srv.URL, "test_api_key").ContractCreationBlock(context.Background(), contract)
			require.ErrorIs(t, err, ErrLookupFailed)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestContractCreationBlockUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL, "k").ContractCreationBlock(context.Background(), contract)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLookupFailed)
}
