package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creachadair/atomicfile"
)

const (
	// MaxChainIDLen is a maximum length of the chain ID.
	MaxChainIDLen = 50
)

// Genesis is the out-of-band trust anchor: the epoch 0 committee and the
// genesis checkpoint. Nothing in it is verified; it is trusted by
// configuration.
type Genesis struct {
	ChainID     string           `json:"chain_id"`
	GenesisTime time.Time        `json:"genesis_time"`
	Committee   Committee        `json:"committee"`
	Checkpoint  CheckpointHeader `json:"checkpoint"`
}

// ValidateAndComplete checks that all necessary fields are present and fills
// in defaults for optional fields left empty.
func (g *Genesis) ValidateAndComplete() error {
	if g.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(g.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}

	// Fill in default member IDs.
	c, err := NewCommittee(g.Committee.Epoch, g.Committee.Members)
	if err != nil {
		return fmt.Errorf("genesis committee: %w", err)
	}
	g.Committee = *c

	state := g.TrustedState()
	if err := state.ValidateBasic(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	if g.GenesisTime.IsZero() {
		g.GenesisTime = time.UnixMilli(int64(g.Checkpoint.TimestampMs)).UTC()
	}
	return nil
}

// TrustedState returns the trust anchor as a TrustedState.
func (g *Genesis) TrustedState() TrustedState {
	return TrustedState{
		Checkpoint: g.Checkpoint.Copy(),
		Committee:  *g.Committee.Copy(),
	}
}

// SaveAs atomically writes the genesis as indented JSON.
func (g *Genesis) SaveAs(file string) error {
	bz, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	_, err = atomicfile.WriteAll(file, bytes.NewReader(bz), 0644)
	return err
}

// GenesisFromJSON unmarshals and validates a genesis document.
func GenesisFromJSON(jsonBlob []byte) (*Genesis, error) {
	var g Genesis
	if err := json.Unmarshal(jsonBlob, &g); err != nil {
		return nil, err
	}
	if err := g.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return &g, nil
}

// GenesisFromFile reads JSON data from a file and unmarshals it into a Genesis.
func GenesisFromFile(file string) (*Genesis, error) {
	jsonBlob, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("couldn't read genesis file: %w", err)
	}
	g, err := GenesisFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading genesis at %s: %w", file, err)
	}
	return g, nil
}
