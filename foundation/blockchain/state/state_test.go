package state_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/powchain/foundation/blockchain/script"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/kvstore"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/powchain/foundation/blockchain/verifier"
	"github.com/ardanlabs/powchain/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const minerHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

// easyBits is a target almost every hash satisfies.
const easyBits = database.Bits(0x2100ffff)

func testGenesis() genesis.Genesis {
	gen := genesis.Default()
	gen.GenesisBits = easyBits
	gen.DefaultBits = easyBits
	gen.MaxTargetBits = easyBits
	return gen
}

// clock hands out times one minute apart so blocks have rising timestamps.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Minute)
	return c.now
}

func newState(t *testing.T) (*state.State, *signature.KeySigner) {
	t.Helper()

	signer, err := signature.NewKeySigner(minerHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	storage, err := memory.New()
	if err != nil {
		t.Fatalf("Should be able to open storage: %s", err)
	}

	return newStateOn(t, storage), signer
}

// newStateOn constructs the state over the specified storage. The options
// adjust the config before the state is constructed.
func newStateOn(t *testing.T, storage database.Storage, options ...func(cfg *state.Config)) *state.State {
	t.Helper()

	signer, err := signature.NewKeySigner(minerHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	gen := testGenesis()
	clk := clock{now: gen.Date}

	cfg := state.Config{
		Genesis:     gen,
		Storage:     storage,
		MinerPKH:    signer.PubKeyHash(),
		MineWorkers: 1,
		Now:         clk.Now,
	}
	for _, option := range options {
		option(&cfg)
	}

	st, err := state.New(cfg)
	if err != nil {
		t.Fatalf("Should be able to construct the state: %s", err)
	}

	return st
}

// spendCoinbase pays amount to the pubkey hash out of the coinbase of the
// block at height, returning the change to the miner.
func spendCoinbase(t *testing.T, st *state.State, signer *signature.KeySigner, height uint64, to []byte, amount int64, fee int64) database.Tx {
	t.Helper()

	block, err := st.QueryBlockByHeight(height)
	if err != nil {
		t.Fatalf("Should be able to get block %d: %s", height, err)
	}

	cbID, err := block.Trans[0].ID()
	if err != nil {
		t.Fatalf("Should be able to hash the coinbase: %s", err)
	}

	in, err := database.NewTxIn(cbID, 0, script.New())
	if err != nil {
		t.Fatalf("Should be able to construct input: %s", err)
	}

	lock := script.P2PKH(signer.PubKeyHash())
	change := int64(block.CoinbaseAmount()) - amount - fee

	out1, _ := database.NewTxOut(amount, script.P2PKH(to))
	out2, _ := database.NewTxOut(change, lock)
	tx := database.NewTx([]database.TxIn{in}, []database.TxOut{out1, out2})

	signed, err := tx.SignInput(0, lock, signer)
	if err != nil {
		t.Fatalf("Should be able to sign: %s", err)
	}

	return signed
}

// =============================================================================

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to start a chain on empty storage.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen constructing the state.", testID)
		{
			st, signer := newState(t)
			defer st.Shutdown()

			latest := st.RetrieveLatestBlock()
			if latest.Height != 0 || latest.Header.PrevBlockHash != signature.ZeroHash {
				t.Fatalf("\t%s\tTest %d:\tShould create a genesis block at height zero, got %d.", failed, testID, latest.Height)
			}
			t.Logf("\t%s\tTest %d:\tShould create a genesis block at height zero.", success, testID)

			if latest.Header.Bits != easyBits {
				t.Fatalf("\t%s\tTest %d:\tShould mine genesis at the genesis bits, got %s.", failed, testID, latest.Header.Bits)
			}
			t.Logf("\t%s\tTest %d:\tShould mine genesis at the genesis bits.", success, testID)

			if err := latest.Header.CheckPOW(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould carry a valid proof of work: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould carry a valid proof of work.", success, testID)

			bal := st.QueryBalance(signer.PubKeyHash())
			if bal.Confirmed != 50_0000_0000 || len(bal.Outputs) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould pay the subsidy to the miner, got %d.", failed, testID, bal.Confirmed)
			}
			t.Logf("\t%s\tTest %d:\tShould pay the subsidy to the miner.", success, testID)
		}
	}
}

func Test_MineChain(t *testing.T) {
	t.Log("Given the need to extend the chain by mining.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen mining two blocks on an empty mempool.", testID)
		{
			st, signer := newState(t)
			defer st.Shutdown()

			for range 2 {
				if _, err := st.MineNewBlock(context.Background()); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to mine a block: %s", failed, testID, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould be able to mine a block.", success, testID)

			blocks := st.QueryBlocksByHeight(0, state.QueryLatest)
			if len(blocks) != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould have three blocks, got %d.", failed, testID, len(blocks))
			}
			t.Logf("\t%s\tTest %d:\tShould have three blocks.", success, testID)

			for i := 1; i < len(blocks); i++ {
				if blocks[i].Header.PrevBlockHash != blocks[i-1].Hash() {
					t.Fatalf("\t%s\tTest %d:\tShould link block %d to its parent.", failed, testID, i)
				}
				if blocks[i].TxCount != 1 {
					t.Fatalf("\t%s\tTest %d:\tShould mine block %d with only the coinbase.", failed, testID, i)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould link every block to its parent.", success, testID)

			if st.RetrieveLatestBlock().Height != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould be at height 2.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be at height 2.", success, testID)

			if bal := st.QueryBalance(signer.PubKeyHash()); bal.Confirmed != 150_0000_0000 {
				t.Fatalf("\t%s\tTest %d:\tShould pay three subsidies, got %d.", failed, testID, bal.Confirmed)
			}
			t.Logf("\t%s\tTest %d:\tShould pay three subsidies.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the mining is cancelled.", testID)
		{
			st, _ := newState(t)
			defer st.Shutdown()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if _, err := st.MineNewBlock(ctx); !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest %d:\tShould stop with the context error, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould stop with the context error.", success, testID)

			if st.RetrieveLatestBlock().Height != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould leave the chain unchanged.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the chain unchanged.", success, testID)
		}
	}
}

func Test_SubmitAndMine(t *testing.T) {
	t.Log("Given the need to confirm submitted transactions.")
	{
		st, signer := newState(t)
		defer st.Shutdown()

		alice := signature.ShortHash([]byte("alice"))
		tx := spendCoinbase(t, st, signer, 0, alice, 30_0000_0000, 1_0000_0000)
		txID, _ := tx.ID()

		testID := 0
		t.Logf("\tTest %d:\tWhen submitting a signed transaction.", testID)
		{
			entry, err := st.SubmitTransaction(tx)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould admit the transaction: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould admit the transaction.", success, testID)

			if entry.Fee != 1_0000_0000 {
				t.Fatalf("\t%s\tTest %d:\tShould compute the fee, got %d.", failed, testID, entry.Fee)
			}
			t.Logf("\t%s\tTest %d:\tShould compute the fee.", success, testID)

			rec, err := st.QueryTx(txID)
			if err != nil || rec.Confirmed {
				t.Fatalf("\t%s\tTest %d:\tShould find the transaction unconfirmed: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould find the transaction unconfirmed.", success, testID)

			if _, err := st.SubmitTransaction(tx); !errors.Is(err, mempool.ErrAlreadyExists) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a duplicate, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a duplicate.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen mining the next block.", testID)
		{
			block, err := st.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine a block: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to mine a block.", success, testID)

			if block.TxCount != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould include the transaction, got %d txs.", failed, testID, block.TxCount)
			}
			t.Logf("\t%s\tTest %d:\tShould include the transaction.", success, testID)

			if block.CoinbaseAmount() != 51_0000_0000 {
				t.Fatalf("\t%s\tTest %d:\tShould pay the subsidy plus fees, got %d.", failed, testID, block.CoinbaseAmount())
			}
			t.Logf("\t%s\tTest %d:\tShould pay the subsidy plus fees.", success, testID)

			if st.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould evict the confirmed transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould evict the confirmed transaction.", success, testID)

			rec, err := st.QueryTx(txID)
			if err != nil || !rec.Confirmed || rec.Height != 1 || rec.Index != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould locate the transaction in block 1: %+v %v", failed, testID, rec, err)
			}
			t.Logf("\t%s\tTest %d:\tShould locate the transaction in block 1.", success, testID)

			proof, err := st.QueryTxProof(txID)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould build an inclusion proof: %s", failed, testID, err)
			}
			if !proof.Verify() || proof.MerkleRoot != block.Header.MerkleRoot {
				t.Fatalf("\t%s\tTest %d:\tShould verify the inclusion proof.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould verify the inclusion proof.", success, testID)

			if bal := st.QueryBalance(alice); bal.Confirmed != 30_0000_0000 {
				t.Fatalf("\t%s\tTest %d:\tShould credit the recipient, got %d.", failed, testID, bal.Confirmed)
			}
			t.Logf("\t%s\tTest %d:\tShould credit the recipient.", success, testID)

			_, err = st.SubmitTransaction(tx)
			if state.Classify(err) != state.KindRejected {
				t.Fatalf("\t%s\tTest %d:\tShould reject a confirmed spend, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a confirmed spend.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen truncating the chain.", testID)
		{
			if err := st.Truncate(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to truncate: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to truncate.", success, testID)

			if st.RetrieveLatestBlock().Height != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould start over at genesis.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould start over at genesis.", success, testID)

			if _, err := st.QueryTx(txID); !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould forget confirmed transactions, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould forget confirmed transactions.", success, testID)
		}
	}
}

func Test_PeerBlock(t *testing.T) {
	t.Log("Given the need to accept blocks mined by peers.")
	{
		miner, signer := newState(t)
		defer miner.Shutdown()

		peer, _ := newState(t)
		defer peer.Shutdown()

		testID := 0
		t.Logf("\tTest %d:\tWhen both nodes start from the same genesis.", testID)
		{
			if miner.RetrieveLatestBlock().Hash() != peer.RetrieveLatestBlock().Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould mine the same genesis block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould mine the same genesis block.", success, testID)
		}

		tx := spendCoinbase(t, miner, signer, 0, signature.ShortHash([]byte("bob")), 10_0000_0000, 5000)
		if _, err := miner.SubmitTransaction(tx); err != nil {
			t.Fatalf("Should admit the transaction: %s", err)
		}
		if _, err := peer.ProcessPeerTransaction(tx); err != nil {
			t.Fatalf("Should admit the peer transaction: %s", err)
		}

		block, err := miner.MineNewBlock(context.Background())
		if err != nil {
			t.Fatalf("Should be able to mine a block: %s", err)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the peer receives a valid block.", testID)
		{
			if err := peer.ProcessPeerBlock(block); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the block: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the block.", success, testID)

			if peer.RetrieveLatestBlock().Hash() != block.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould make the block the latest block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould make the block the latest block.", success, testID)

			if peer.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould evict the confirmed transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould evict the confirmed transaction.", success, testID)

			err := peer.ProcessPeerBlock(block)
			if !errors.Is(err, state.ErrBlockRejected) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the same block twice, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the same block twice.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the peer receives an invalid block.", testID)
		{
			latest := peer.RetrieveLatestBlock()
			reward := peer.RetrieveGenesis().Reward(2)
			lock := script.P2PKH(signer.PubKeyHash())

			build := func(bits database.Bits, amount uint64, message string) database.Block {
				cb := database.NewCoinbaseTx(2, amount, lock, message)
				b, err := database.NewBlock(2, latest.Hash(), bits, latest.Header.Timestamp+60, []database.Tx{cb})
				if err != nil {
					t.Fatalf("Should be able to construct block: %s", err)
				}
				if _, err := b.Header.Mine(context.Background(), database.MineConfig{Workers: 1}); err != nil {
					t.Fatalf("Should be able to mine block: %s", err)
				}
				return b
			}

			err := peer.ProcessPeerBlock(build(easyBits, reward+1, ""))
			if !errors.Is(err, state.ErrBlockRejected) || !errors.Is(err, verifier.ErrValidation) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a coinbase paying too much, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a coinbase paying too much.", success, testID)

			err = peer.ProcessPeerBlock(build(0x207fffff, reward, ""))
			if !errors.Is(err, state.ErrBlockRejected) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the wrong difficulty, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the wrong difficulty.", success, testID)

			oversize := strings.Repeat("x", peer.RetrieveGenesis().MaxBlockBytes)
			err = peer.ProcessPeerBlock(build(easyBits, reward, oversize))
			if !errors.Is(err, state.ErrBlockRejected) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a block over the size limit, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a block over the size limit.", success, testID)

			if err := peer.ProcessPeerBlock(build(easyBits, reward, "")); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the corrected block: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the corrected block.", success, testID)
		}
	}
}

func Test_Classify(t *testing.T) {
	tt := []struct {
		name string
		err  error
		kind state.ErrorKind
	}{
		{name: "malformed", err: fmt.Errorf("decode: %w", database.ErrMalformed), kind: state.KindMalformed},
		{name: "script", err: script.ErrMalformed, kind: state.KindMalformed},
		{name: "negative", err: database.ErrNegativeAmount, kind: state.KindConstruction},
		{name: "hash", err: database.ErrInvalidHash, kind: state.KindConstruction},
		{name: "validation", err: &verifier.Failure{Reason: "bad"}, kind: state.KindRejected},
		{name: "duplicate", err: mempool.ErrAlreadyExists, kind: state.KindRejected},
		{name: "full", err: mempool.ErrPoolFull, kind: state.KindResource},
		{name: "nonce", err: database.ErrNonceExhausted, kind: state.KindMiningExhausted},
		{name: "storage", err: fmt.Errorf("%w: disk", database.ErrStorage), kind: state.KindStorage},
		{name: "notfound", err: database.ErrNotFound, kind: state.KindNotFound},
		{name: "other", err: errors.New("other"), kind: state.KindUnknown},
	}

	t.Log("Given the need to group errors by kind.")
	{
		for testID, test := range tt {
			tf := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling a %s error.", testID, test.name)
				{
					if got := state.Classify(test.err); got != test.kind {
						t.Fatalf("\t%s\tTest %d:\tShould classify as %s, got %s.", failed, testID, test.kind, got)
					}
					t.Logf("\t%s\tTest %d:\tShould classify as %s.", success, testID, test.kind)
				}
			}

			t.Run(test.name, tf)
		}
	}
}

func Test_KVStore(t *testing.T) {
	t.Log("Given the need to query confirmed transactions kept in a key value store.")
	{
		path := t.TempDir()

		kv, err := kvstore.New(path)
		if err != nil {
			t.Fatalf("Should be able to open the store: %s", err)
		}

		st := newStateOn(t, kv)
		signer, _ := signature.NewKeySigner(minerHexKey)

		alice := signature.ShortHash([]byte("alice"))
		tx := spendCoinbase(t, st, signer, 0, alice, 30_0000_0000, 1_0000_0000)
		txID, _ := tx.ID()

		testID := 0
		t.Logf("\tTest %d:\tWhen mining a block holding a transaction.", testID)
		{
			if _, err := st.SubmitTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould admit the transaction: %s", failed, testID, err)
			}

			block, err := st.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine a block: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to mine a block.", success, testID)

			rec, err := st.QueryTx(txID)
			if err != nil || !rec.Confirmed || rec.Height != 1 || rec.Index != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould locate the transaction in block 1: %+v %v", failed, testID, rec, err)
			}
			t.Logf("\t%s\tTest %d:\tShould locate the transaction in block 1.", success, testID)

			proof, err := st.QueryTxProof(txID)
			if err != nil || !proof.Verify() || proof.MerkleRoot != block.Header.MerkleRoot {
				t.Fatalf("\t%s\tTest %d:\tShould verify the inclusion proof: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould verify the inclusion proof.", success, testID)

			if _, err := st.QueryTx("00"); state.Classify(err) != state.KindNotFound {
				t.Fatalf("\t%s\tTest %d:\tShould not find an unknown id, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not find an unknown id.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen reopening the store.", testID)
		{
			if err := st.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to shutdown: %s", failed, testID, err)
			}

			kv, err := kvstore.New(path)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to reopen the store: %s", failed, testID, err)
			}

			st := newStateOn(t, kv)
			defer st.Shutdown()

			rec, err := st.QueryTx(txID)
			if err != nil || !rec.Confirmed || rec.Height != 1 || rec.Index != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould still locate the transaction: %+v %v", failed, testID, rec, err)
			}
			t.Logf("\t%s\tTest %d:\tShould still locate the transaction.", success, testID)
		}
	}
}

func Test_Publish(t *testing.T) {
	t.Log("Given the need to announce accepted blocks and transactions.")
	{
		evts := events.New()
		defer evts.Shutdown()

		ch := evts.Subscribe("test", events.KindBlockMined, events.KindPeerBlock, events.KindTxAdmitted)

		storage, err := memory.New()
		if err != nil {
			t.Fatalf("Should be able to open storage: %s", err)
		}
		st := newStateOn(t, storage, func(cfg *state.Config) { cfg.Publisher = evts })
		defer st.Shutdown()

		signer, _ := signature.NewKeySigner(minerHexKey)

		testID := 0
		t.Logf("\tTest %d:\tWhen starting on empty storage.", testID)
		{
			if len(ch) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not announce the genesis block, got %d events.", failed, testID, len(ch))
			}
			t.Logf("\t%s\tTest %d:\tShould not announce the genesis block.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a transaction is admitted and mined.", testID)
		{
			tx := spendCoinbase(t, st, signer, 0, signature.ShortHash([]byte("bob")), 10_0000_0000, 5000)
			txID, _ := tx.ID()

			if _, err := st.SubmitTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould admit the transaction: %s", failed, testID, err)
			}

			got := <-ch
			if got.Kind != events.KindTxAdmitted || got.TxID != txID || got.Fee != 5000 {
				t.Fatalf("\t%s\tTest %d:\tShould announce the admitted transaction, got %+v.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould announce the admitted transaction.", success, testID)

			block, err := st.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine a block: %s", failed, testID, err)
			}

			got = <-ch
			if got.Kind != events.KindBlockMined || got.Height != 1 || got.Hash != block.Hash() || got.TxCount != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould announce the mined block, got %+v.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould announce the mined block.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a peer block is accepted.", testID)
		{
			miner, _ := newState(t)
			defer miner.Shutdown()

			// Bring the miner to the same height so its next block extends ours.
			if err := miner.ProcessPeerBlock(st.RetrieveLatestBlock()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould sync the miner: %s", failed, testID, err)
			}

			block, err := miner.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine a block: %s", failed, testID, err)
			}

			if err := st.ProcessPeerBlock(block); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the peer block: %s", failed, testID, err)
			}

			got := <-ch
			if got.Kind != events.KindPeerBlock || got.Height != 2 || got.Hash != block.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould announce the peer block, got %+v.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould announce the peer block.", success, testID)

			if err := st.ProcessPeerBlock(block); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject the block twice.", failed, testID)
			}
			if len(ch) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not announce a rejected block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not announce a rejected block.", success, testID)
		}
	}
}
