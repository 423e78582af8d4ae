// Package genesis maintains access to the genesis file that holds the chain
// parameters.
package genesis

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/validate"
)

// DefaultPath is where the node looks for the genesis file.
const DefaultPath = "zblock/genesis.json"

// Genesis represents the genesis file.
type Genesis struct {
	Date               time.Time     `json:"date"`
	InitialSubsidy     uint64        `json:"initial_subsidy" validate:"required"`           // Reward for mining the first blocks.
	HalvingInterval    uint64        `json:"halving_interval" validate:"required"`          // Blocks between each halving of the subsidy.
	GenesisBits        database.Bits `json:"genesis_bits" validate:"required"`              // Difficulty of the genesis block.
	DefaultBits        database.Bits `json:"default_bits" validate:"required"`              // Used when the previous block carries no bits.
	MaxTargetBits      database.Bits `json:"max_target_bits" validate:"required"`           // Easiest difficulty a retarget can produce.
	RetargetInterval   uint64        `json:"retarget_interval" validate:"required"`         // Blocks between difficulty adjustments.
	TargetBlockSeconds uint64        `json:"target_block_seconds" validate:"required"`      // Desired seconds between blocks.
	MaxBlockBytes      int           `json:"max_block_bytes" validate:"required,gt=80"`     // Upper bound on a serialized block.
	MempoolMaxEntries  int           `json:"mempool_max_entries" validate:"required,gt=0"`  // Capacity of the mempool.
	MempoolExpiry      Duration      `json:"mempool_expiry"`                                // Age at which a pooled transaction is dropped.
	CoinbaseMessage    string        `json:"coinbase_message" validate:"omitempty,max=100"` // Placed in every coinbase unlock script.
}

// Default returns the parameters used when no genesis file is provided.
func Default() Genesis {
	return Genesis{
		Date:               time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		InitialSubsidy:     50_0000_0000,
		HalvingInterval:    210_000,
		GenesisBits:        0x20ffffff,
		DefaultBits:        0x1e00ffff,
		MaxTargetBits:      0x1f00ffff,
		RetargetInterval:   10,
		TargetBlockSeconds: 60,
		MaxBlockBytes:      1_000_000,
		MempoolMaxEntries:  10_000,
		MempoolExpiry:      Duration(time.Hour),
		CoinbaseMessage:    "powchain",
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Fields missing from the file
// keep their default values.
func Load(path string) (Genesis, error) {
	if path == "" {
		path = DefaultPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := validate.Check(genesis); err != nil {
		return Genesis{}, fmt.Errorf("validating %s: %w", path, err)
	}

	return genesis, nil
}

// Reward returns the block subsidy at the specified height.
func (g Genesis) Reward(height uint64) uint64 {
	return database.BlockReward(height, g.InitialSubsidy, g.HalvingInterval)
}

// MaxTarget returns the easiest target a retarget can produce.
func (g Genesis) MaxTarget() *big.Int {
	return g.MaxTargetBits.Target()
}

// RetargetParams returns the settings for adjusting the difficulty.
func (g Genesis) RetargetParams() database.RetargetParams {
	return database.RetargetParams{
		Interval:     g.RetargetInterval,
		BlockSeconds: g.TargetBlockSeconds,
		MaxTarget:    g.MaxTarget(),
	}
}

// =============================================================================

// Duration is a time.Duration that is written in JSON as a string like
// "1h30m".
type Duration time.Duration

// MarshalText implements the encoding.TextMarshaler interface.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
