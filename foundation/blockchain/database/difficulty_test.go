package database_test

import (
	"math/big"
	"testing"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/btcsuite/btcd/blockchain"
)

func Test_Bits(t *testing.T) {
	tt := []struct {
		name string
		bits database.Bits
	}{
		{"bitcoin", 0x1d00ffff},
		{"default", 0x1e00ffff},
		{"maxtarget", 0x1f00ffff},
		{"regtest", 0x207fffff},
		{"mainnet", 0x17034219},
		{"small", 0x03123456},
	}

	t.Log("Given the need to encode and decode compact targets.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling the %s bits %s.", testID, tst.name, tst.bits)
				{
					got := tst.bits.Target()
					exp := blockchain.CompactToBig(uint32(tst.bits))
					if got.Cmp(exp) != 0 {
						t.Logf("\t%s\tTest %d:\tgot: %x", failed, testID, got)
						t.Logf("\t%s\tTest %d:\texp: %x", failed, testID, exp)
						t.Fatalf("\t%s\tTest %d:\tShould decode the same target.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould decode the same target.", success, testID)

					back := database.TargetToBits(got)
					if back != tst.bits {
						t.Fatalf("\t%s\tTest %d:\tShould encode back to the same bits, got %s.", failed, testID, back)
					}
					t.Logf("\t%s\tTest %d:\tShould encode back to the same bits.", success, testID)

					if uint32(back) != blockchain.BigToCompact(got) {
						t.Fatalf("\t%s\tTest %d:\tShould match the reference encoding.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould match the reference encoding.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_BitsPrecision(t *testing.T) {
	t.Log("Given the need to keep three bytes of target precision.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen encoding a target with more precision.", testID)
		{
			target, _ := new(big.Int).SetString("123456789abcdef0123456789abcdef", 16)

			bits := database.TargetToBits(target)
			got := bits.Target()

			if got.Cmp(target) > 0 {
				t.Fatalf("\t%s\tTest %d:\tShould never round the target up.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould never round the target up.", success, testID)

			if database.TargetToBits(got) != bits {
				t.Fatalf("\t%s\tTest %d:\tShould be stable after one round trip.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be stable after one round trip.", success, testID)

			if uint32(bits) != blockchain.BigToCompact(target) {
				t.Fatalf("\t%s\tTest %d:\tShould match the reference encoding.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould match the reference encoding.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen encoding a target whose top bit is set.", testID)
		{
			target := big.NewInt(0x80)
			bits := database.TargetToBits(target)
			if bits != 0x02008000 {
				t.Fatalf("\t%s\tTest %d:\tShould prepend a zero byte, got %s.", failed, testID, bits)
			}
			t.Logf("\t%s\tTest %d:\tShould prepend a zero byte.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the coefficient has its top bit set.", testID)
		{
			got := database.Bits(0x20ffffff).Target()
			exp := new(big.Int).Lsh(big.NewInt(0xffffff), 8*29)
			if got.Cmp(exp) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould treat the coefficient as unsigned.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould treat the coefficient as unsigned.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the target is longer than the length byte allows.", testID)
		{
			edge := new(big.Int).Lsh(big.NewInt(1), 8*254)
			if bits := database.TargetToBits(edge); bits != 0xff010000 {
				t.Fatalf("\t%s\tTest %d:\tShould encode a 255 byte target, got %s.", failed, testID, bits)
			}
			t.Logf("\t%s\tTest %d:\tShould encode a 255 byte target.", success, testID)

			huge := new(big.Int).Lsh(big.NewInt(1), 8*300)
			if bits := database.TargetToBits(huge); bits != database.MaxBits {
				t.Fatalf("\t%s\tTest %d:\tShould clamp to the largest bits, got %s.", failed, testID, bits)
			}
			t.Logf("\t%s\tTest %d:\tShould clamp to the largest bits.", success, testID)
		}
	}
}

func Test_NextBits(t *testing.T) {
	params := database.RetargetParams{
		Interval:     10,
		BlockSeconds: 60,
		MaxTarget:    database.Bits(0x1f00ffff).Target(),
	}
	const prev = database.Bits(0x1e00ffff)
	const first = uint32(1_700_000_000)

	scaled := func(num, den int64) database.Bits {
		target := prev.Target()
		target.Mul(target, big.NewInt(num))
		target.Div(target, big.NewInt(den))
		return database.TargetToBits(target)
	}

	tt := []struct {
		name   string
		actual uint32
		exp    database.Bits
	}{
		{"ontime", 600, prev},
		{"twiceslow", 1200, scaled(2, 1)},
		{"halffast", 300, scaled(1, 2)},
		{"clampfast", 1, scaled(1, 4)},
		{"clampslow", 100_000, scaled(4, 1)},
	}

	t.Log("Given the need to retarget the difficulty.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen the interval took %d seconds.", testID, tst.actual)
				{
					got := database.NextBits(prev, first, first+tst.actual, params)
					if got != tst.exp {
						t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, got)
						t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, tst.exp)
						t.Fatalf("\t%s\tTest %d:\tShould scale the target.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould scale the target.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}

		testID := len(tt)
		t.Logf("\tTest %d:\tWhen the adjustment passes the maximum target.", testID)
		{
			got := database.NextBits(0x1f00ffff, first, first+6000, params)
			if got != 0x1f00ffff {
				t.Fatalf("\t%s\tTest %d:\tShould cap at the maximum target, got %s.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould cap at the maximum target.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen checking which heights retarget.", testID)
		{
			checks := map[uint64]bool{0: false, 1: false, 9: false, 10: true, 11: false, 20: true}
			for h, exp := range checks {
				if database.IsRetargetHeight(h, 10) != exp {
					t.Fatalf("\t%s\tTest %d:\tShould report height %d as %v.", failed, testID, h, exp)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould only retarget on interval boundaries.", success, testID)
		}
	}
}

func Test_BlockReward(t *testing.T) {
	const subsidy = 50_0000_0000
	const halving = 210_000

	tt := []struct {
		height uint64
		exp    uint64
	}{
		{0, subsidy},
		{halving - 1, subsidy},
		{halving, subsidy / 2},
		{2 * halving, subsidy / 4},
		{33 * halving, 0},
		{64 * halving, 0},
		{1000 * halving, 0},
	}

	t.Log("Given the need to compute block subsidies.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen mining height %d.", testID, tst.height)
			{
				got := database.BlockReward(tst.height, subsidy, halving)
				if got != tst.exp {
					t.Fatalf("\t%s\tTest %d:\tShould get %d, got %d.", failed, testID, tst.exp, got)
				}
				t.Logf("\t%s\tTest %d:\tShould get %d.", success, testID, tst.exp)
			}
		}
	}
}
