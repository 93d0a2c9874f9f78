package provider

import (
	"context"

	"github.com/tendermint/checkpoint-light/types"
)

// Provider serves checkpoints to the light client. Providers are untrusted:
// everything they return is verified by the caller.
type Provider interface {
	// CheckpointData returns the certificate and contents of the checkpoint
	// with the given sequence number.
	//
	// If the provider does not have it (yet), ErrCheckpointNotFound is
	// returned. If it fails to answer because of IO or other transient
	// issues, ErrNoResponse is returned. Data that can't be decoded yields
	// ErrBadCheckpoint.
	CheckpointData(ctx context.Context, seq uint64) (*types.CheckpointData, error)

	// LatestSequence returns the sequence number of the newest checkpoint the
	// provider has.
	LatestSequence(ctx context.Context) (uint64, error)

	// String identifies the provider in logs.
	String() string
}
