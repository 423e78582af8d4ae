package verifier_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/script"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
	"github.com/ardanlabs/powchain/foundation/blockchain/verifier"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	pkHexKey    = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	otherHexKey = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
)

type fixture struct {
	signer *signature.KeySigner
	view   *database.UTXOSet
	lock   script.Script
	prev   database.OutPoint
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	signer, err := signature.NewKeySigner(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	lock := script.P2PKH(signer.PubKeyHash())
	prev := database.OutPoint{TxID: signature.DoubleHash([]byte("funding")).String(), Index: 1}

	view := database.NewUTXOSet()
	view.Add(prev, database.UTXO{Amount: 1000, LockScript: lock})

	return fixture{signer: signer, view: view, lock: lock, prev: prev}
}

// spend builds an unsigned transaction paying amount out of the funding output.
func (f fixture) spend(t *testing.T, amount int64) database.Tx {
	t.Helper()

	in, err := database.NewTxIn(f.prev.TxID, f.prev.Index, script.New())
	if err != nil {
		t.Fatalf("Should be able to construct input: %s", err)
	}
	out, err := database.NewTxOut(amount, script.P2PKH(signature.ShortHash([]byte("bob"))))
	if err != nil {
		t.Fatalf("Should be able to construct output: %s", err)
	}

	return database.NewTx([]database.TxIn{in}, []database.TxOut{out})
}

func (f fixture) sign(t *testing.T, tx database.Tx, signer signature.Signer) database.Tx {
	t.Helper()

	signed, err := tx.SignInput(0, f.lock, signer)
	if err != nil {
		t.Fatalf("Should be able to sign: %s", err)
	}
	return signed
}

// =============================================================================

func Test_Production(t *testing.T) {
	t.Log("Given the need to verify signed transactions.")
	{
		f := newFixture(t)
		v := verifier.New(nil)

		testID := 0
		t.Logf("\tTest %d:\tWhen the transaction is properly signed.", testID)
		{
			tx := f.sign(t, f.spend(t, 900), f.signer)

			fee, err := v.Check(tx, f.view)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transaction: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the transaction.", success, testID)

			if fee != 100 {
				t.Fatalf("\t%s\tTest %d:\tShould compute a fee of 100, got %d.", failed, testID, fee)
			}
			t.Logf("\t%s\tTest %d:\tShould compute a fee of 100.", success, testID)

			if !v.Verify(tx, f.view) {
				t.Fatalf("\t%s\tTest %d:\tShould report the transaction as valid.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report the transaction as valid.", success, testID)
		}

		other, err := signature.NewKeySigner(otherHexKey)
		if err != nil {
			t.Fatalf("Should be able to load the other private key: %s", err)
		}

		tampered := f.sign(t, f.spend(t, 900), f.signer)
		tampered.TxOuts[0].Amount = 800

		tt := []struct {
			name string
			tx   database.Tx
		}{
			{"unsigned", f.spend(t, 900)},
			{"wrongkey", f.sign(t, f.spend(t, 900), other)},
			{"tampered", tampered},
			{"overspend", f.sign(t, f.spend(t, 1001), f.signer)},
		}

		for i, tst := range tt {
			testID := testID + 1 + i
			fn := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen checking the %s transaction.", testID, tst.name)
				{
					_, err := v.Check(tst.tx, f.view)
					if !errors.Is(err, verifier.ErrValidation) {
						t.Fatalf("\t%s\tTest %d:\tShould reject the transaction, got %v.", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the transaction: %s", success, testID, err)

					if v.Verify(tst.tx, f.view) {
						t.Fatalf("\t%s\tTest %d:\tShould report the transaction as invalid.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould report the transaction as invalid.", success, testID)
				}
			}

			t.Run(tst.name, fn)
		}
	}
}

func Test_Structure(t *testing.T) {
	t.Log("Given the need to reject structurally invalid transactions.")
	{
		f := newFixture(t)
		dev := verifier.NewDevelopment()

		missing := f.spend(t, 1)
		missing.TxIns[0].PrevIndex = 9

		dup := f.spend(t, 1)
		dup.TxIns = append(dup.TxIns, dup.TxIns[0])

		noOuts := f.spend(t, 1)
		noOuts.TxOuts = nil

		noIns := f.spend(t, 1)
		noIns.TxIns = nil

		sentinel := f.spend(t, 1)
		cb := database.NewCoinbaseTx(1, 1, f.lock, "")
		sentinel.TxIns = append(sentinel.TxIns, cb.TxIns[0])

		tt := []struct {
			name  string
			tx    database.Tx
			input int
		}{
			{"missing", missing, 0},
			{"duplicate", dup, 1},
			{"nooutputs", noOuts, -1},
			{"noinputs", noIns, -1},
			{"sentinel", sentinel, 1},
		}

		for testID, tst := range tt {
			fn := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen checking the %s transaction.", testID, tst.name)
				{
					_, err := dev.Check(tst.tx, f.view)

					var failure *verifier.Failure
					if !errors.As(err, &failure) {
						t.Fatalf("\t%s\tTest %d:\tShould reject the transaction, got %v.", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the transaction: %s", success, testID, err)

					if failure.Input != tst.input {
						t.Fatalf("\t%s\tTest %d:\tShould blame input %d, got %d.", failed, testID, tst.input, failure.Input)
					}
					t.Logf("\t%s\tTest %d:\tShould blame input %d.", success, testID, tst.input)
				}
			}

			t.Run(tst.name, fn)
		}
	}
}

func Test_Development(t *testing.T) {
	t.Log("Given the need to skip signature checks during development.")
	{
		f := newFixture(t)
		dev := verifier.NewDevelopment()

		testID := 0
		t.Logf("\tTest %d:\tWhen the transaction is unsigned.", testID)
		{
			if dev.Mode() != verifier.Development {
				t.Fatalf("\t%s\tTest %d:\tShould report the development mode.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report the development mode.", success, testID)

			fee, err := dev.Check(f.spend(t, 400), f.view)
			if err != nil || fee != 600 {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transaction with a fee of 600: %v %d", failed, testID, err, fee)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the transaction with a fee of 600.", success, testID)

			if dev.Verify(f.spend(t, 1001), f.view) {
				t.Fatalf("\t%s\tTest %d:\tShould still check the balance.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould still check the balance.", success, testID)
		}
	}
}

func Test_Coinbase(t *testing.T) {
	t.Log("Given the need to validate coinbase transactions.")
	{
		v := verifier.New(nil)
		lock := script.P2PKH(signature.ShortHash([]byte("miner")))

		testID := 0
		t.Logf("\tTest %d:\tWhen the coinbase is well formed.", testID)
		{
			cb := database.NewCoinbaseTx(12, 5000, lock, "hello")
			if !v.VerifyCoinbase(cb) {
				t.Fatalf("\t%s\tTest %d:\tShould accept the coinbase.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the coinbase.", success, testID)

			fee, err := v.Check(cb, database.NewUTXOSet())
			if err != nil || fee != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould accept it through Check with no fee: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept it through Check with no fee.", success, testID)

			rules := verifier.CoinbaseRules{Height: 12, CheckHeight: true, MaxReward: 5000, CheckReward: true}
			if err := v.CheckCoinbase(cb, rules); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould pass the strict rules: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould pass the strict rules.", success, testID)

			rules.Height = 13
			if err := v.CheckCoinbase(cb, rules); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject the wrong height commitment.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the wrong height commitment.", success, testID)

			rules = verifier.CoinbaseRules{MaxReward: 4999, CheckReward: true}
			if err := v.CheckCoinbase(cb, rules); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject an excessive reward.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject an excessive reward.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the coinbase is malformed.", testID)
		{
			noOuts := database.NewCoinbaseTx(1, 1, lock, "")
			noOuts.TxOuts = nil

			emptyScript := database.NewCoinbaseTx(1, 1, lock, "")
			emptyScript.TxIns[0].ScriptSig = script.New()

			twoIns := database.NewCoinbaseTx(1, 1, lock, "")
			twoIns.TxIns = append(twoIns.TxIns, twoIns.TxIns[0])

			for name, cb := range map[string]database.Tx{"nooutputs": noOuts, "emptyscript": emptyScript, "twoinputs": twoIns} {
				if v.VerifyCoinbase(cb) {
					t.Fatalf("\t%s\tTest %d:\tShould reject the %s coinbase.", failed, testID, name)
				}
				t.Logf("\t%s\tTest %d:\tShould reject the %s coinbase.", success, testID, name)
			}
		}
	}
}
