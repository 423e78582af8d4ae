package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ardanlabs/powchain/app/services/node/handlers"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/metrics"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_DebugMux(t *testing.T) {
	strg, _ := memory.New()
	gen := genesis.Default()
	gen.GenesisBits = 0x2100ffff

	reg := prometheus.NewRegistry()

	st, err := state.New(state.Config{
		Genesis:     gen,
		Storage:     strg,
		MinerPKH:    signature.ShortHash([]byte("miner")),
		MineWorkers: 1,
		Metrics:     metrics.New(reg),
	})
	if err != nil {
		t.Fatalf("Should construct the state: %s", err)
	}
	defer st.Shutdown()

	mux := handlers.DebugMux(handlers.DebugConfig{
		Build:    "test",
		Log:      zap.NewNop().Sugar(),
		State:    st,
		Evts:     events.New(),
		Gatherer: reg,
	})

	tt := []struct {
		name string
		path string
		body string
	}{
		{"liveness", "/debug/liveness", `"status":"up"`},
		{"readiness", "/debug/readiness", `"status":"ok"`},
		{"metrics", "/metrics", "powchain_chain_height"},
		{"stdlib", "/debug/vars", "memstats"},
	}

	t.Log("Given the need to route the debug endpoints.")
	{
		for testID, test := range tt {
			tf := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen requesting %s.", testID, test.path)
				{
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, test.path, nil))

					if w.Code != http.StatusOK {
						t.Fatalf("\t%s\tTest %d:\tShould get a 200, got %d.", failed, testID, w.Code)
					}
					t.Logf("\t%s\tTest %d:\tShould get a 200.", success, testID)

					if !strings.Contains(w.Body.String(), test.body) {
						t.Fatalf("\t%s\tTest %d:\tShould find %q in the body.", failed, testID, test.body)
					}
					t.Logf("\t%s\tTest %d:\tShould find %q in the body.", success, testID, test.body)
				}
			}

			t.Run(test.name, tf)
		}
	}
}
