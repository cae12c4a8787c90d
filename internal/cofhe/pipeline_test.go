package cofhe

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/errutil"
)

type fakeChain struct {
	chainID  atomic.Int64
	switches atomic.Int64
}

func (f *fakeChain) ChainID() int64 { return f.chainID.Load() }

func (f *fakeChain) SwitchNetwork(ctx context.Context, net Network) error {
	f.switches.Add(1)
	f.chainID.Store(net.ChainID)
	return nil
}

func newTestServer(t *testing.T, initCalls, encryptCalls *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/init", func(w http.ResponseWriter, r *http.Request) {
		initCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/encrypt", func(w http.ResponseWriter, r *http.Request) {
		encryptCalls.Add(1)
		var req struct {
			Value string `json:"value"`
			Utype uint8  `json:"utype"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ct_hash":       "0xabc123",
			"security_zone": 0,
			"utype":         req.Utype,
			"signature":     "0xdeadbeef",
		})
	})
	return httptest.NewServer(mux)
}

func TestEncryptLazyInitMemoized(t *testing.T) {
	var initCalls, encryptCalls atomic.Int64
	srv := newTestServer(t, &initCalls, &encryptCalls)
	defer srv.Close()

	chain := &fakeChain{}
	chain.chainID.Store(421614)
	p := NewPipeline("TESTNET", srv.URL, 0, Network{ChainID: 421614}, chain, zap.NewNop())

	if initCalls.Load() != 0 {
		t.Fatal("pipeline must not touch the coprocessor before first use")
	}

	for i := 0; i < 3; i++ {
		enc, err := p.EncryptUint128(context.Background(), big.NewInt(1000))
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if enc.CtHash == nil || enc.CtHash.Sign() == 0 {
			t.Error("ct hash missing")
		}
		if enc.Utype != UtypeUint128 {
			t.Errorf("utype = %d, want %d", enc.Utype, UtypeUint128)
		}
		if len(enc.Signature) == 0 {
			t.Error("signature missing")
		}
	}

	if got := initCalls.Load(); got != 1 {
		t.Errorf("init calls = %d, want 1", got)
	}
	if got := encryptCalls.Load(); got != 3 {
		t.Errorf("encrypt calls = %d, want 3", got)
	}
}

func TestEncryptSwitchesChainFirst(t *testing.T) {
	var initCalls, encryptCalls atomic.Int64
	srv := newTestServer(t, &initCalls, &encryptCalls)
	defer srv.Close()

	chain := &fakeChain{}
	chain.chainID.Store(1) // wrong chain
	p := NewPipeline("TESTNET", srv.URL, 0, Network{ChainID: 421614}, chain, zap.NewNop())

	if _, err := p.EncryptUint32(context.Background(), 7); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if chain.switches.Load() != 1 {
		t.Errorf("switches = %d, want 1", chain.switches.Load())
	}
	if chain.ChainID() != 421614 {
		t.Errorf("chain id after encrypt = %d, want 421614", chain.ChainID())
	}
}

func TestInvalidateForcesReinit(t *testing.T) {
	var initCalls, encryptCalls atomic.Int64
	srv := newTestServer(t, &initCalls, &encryptCalls)
	defer srv.Close()

	chain := &fakeChain{}
	chain.chainID.Store(421614)
	p := NewPipeline("TESTNET", srv.URL, 0, Network{ChainID: 421614}, chain, zap.NewNop())

	if _, err := p.EncryptUint128(context.Background(), big.NewInt(1)); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	p.Invalidate()
	if _, err := p.EncryptUint128(context.Background(), big.NewInt(2)); err != nil {
		t.Fatalf("encrypt after invalidate: %v", err)
	}
	if got := initCalls.Load(); got != 2 {
		t.Errorf("init calls = %d, want 2", got)
	}
}

func TestEncryptWithoutCoprocessorURL(t *testing.T) {
	chain := &fakeChain{}
	chain.chainID.Store(421614)
	p := NewPipeline("TESTNET", "", 0, Network{ChainID: 421614}, chain, zap.NewNop())

	_, err := p.EncryptUint128(context.Background(), big.NewInt(1))
	if err == nil {
		t.Fatal("expected error without coprocessor url")
	}
	if errutil.KindOf(err) != errutil.ConfigurationMissing {
		t.Errorf("kind = %v, want %v", errutil.KindOf(err), errutil.ConfigurationMissing)
	}
}

func TestEncryptCoprocessorDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	chain := &fakeChain{}
	chain.chainID.Store(421614)
	p := NewPipeline("TESTNET", srv.URL, 0, Network{ChainID: 421614}, chain, zap.NewNop())

	_, err := p.EncryptUint128(context.Background(), big.NewInt(1))
	if err == nil {
		t.Fatal("expected error from failing coprocessor")
	}
	if errutil.KindOf(err) != errutil.EncryptionUnavailable {
		t.Errorf("kind = %v, want %v", errutil.KindOf(err), errutil.EncryptionUnavailable)
	}
}
