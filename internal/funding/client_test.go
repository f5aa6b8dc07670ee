package funding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_Fund(t *testing.T) {
	var got fundRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/fund", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(fundResponse{TransactionRef: "txn-777"})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Timeout: 5 * time.Second}, zap.NewNop())

	ref, err := client.Fund(context.Background(), "wallet-42", decimal.NewFromFloat(19.9), "coffee machine")
	require.NoError(t, err)
	assert.Equal(t, "txn-777", ref)
	assert.Equal(t, "wallet-42", got.AccountRef)
	assert.Equal(t, "19.90", got.Amount)
	assert.Equal(t, "coffee machine", got.Memo)
}

func TestClient_Fund_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient float"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, zap.NewNop())

	_, err := client.Fund(context.Background(), "wallet-42", decimal.NewFromInt(5), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestClient_Fund_MissingTransactionRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, zap.NewNop())

	_, err := client.Fund(context.Background(), "wallet-42", decimal.NewFromInt(5), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transaction reference")
}

func TestClient_Fund_Unreachable(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k", Timeout: 200 * time.Millisecond}, zap.NewNop())

	_, err := client.Fund(context.Background(), "wallet-42", decimal.NewFromInt(5), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
