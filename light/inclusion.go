package light

import (
	tmmath "github.com/tendermint/checkpoint-light/libs/math"
	"github.com/tendermint/checkpoint-light/types"
)

// VerifyInclusion checks whether the (tx, effects) pair is committed by the
// checkpoint with the given header. The header must already be trusted; it
// is not re-verified here.
//
// The contents must hash to header.ContentsDigest, otherwise
// ErrContentsDigestMismatch is returned whatever they contain. The contents
// are a complete manifest, so a transaction absent from them is definitely
// not in the checkpoint (NotFound), and one present with other effects
// proves the claim false (EffectsMismatch).
func VerifyInclusion(
	tx, effects types.Digest,
	contents *types.CheckpointContents,
	header *types.CheckpointHeader) (types.InclusionResult, error) {

	computed := contents.Digest()
	if computed != header.ContentsDigest {
		return types.InclusionResult{}, ErrContentsDigestMismatch{
			Committed: header.ContentsDigest,
			Computed:  computed,
		}
	}

	result := types.InclusionResult{
		Status:           types.NotFound,
		Transaction:      tx,
		ClaimedEffects:   effects,
		Checkpoint:       header.SequenceNumber,
		CheckpointDigest: header.Digest(),
	}

	for _, ed := range contents.Transactions {
		if ed.Transaction != tx {
			continue
		}
		committed := ed.Effects
		result.CommittedEffects = &committed
		if ed.Effects == effects {
			result.Status = types.Included
			return result, nil
		}
		result.Status = types.EffectsMismatch
	}

	return result, nil
}

// VerifyCheckpointData verifies a full checkpoint against the committee of
// its epoch: the certificate must be valid (see VerifyCertificate) and the
// contents must be the ones it commits to. It makes historical checkpoints,
// which are not on the tracker's current path, usable for inclusion proofs.
func VerifyCheckpointData(
	data *types.CheckpointData,
	committee *types.Committee,
	quorum tmmath.Fraction) (*VerifiedHeader, error) {

	verified, err := VerifyCertificate(&data.Certificate, committee, quorum)
	if err != nil {
		return nil, err
	}

	if computed := data.Contents.Digest(); computed != verified.Header.ContentsDigest {
		return nil, ErrContentsDigestMismatch{
			Committed: verified.Header.ContentsDigest,
			Computed:  computed,
		}
	}

	return verified, nil
}

// VerifyExecution is VerifyInclusion over full checkpoint data whose header
// is already trusted. If data carries the transaction's effects and events,
// the effects must hash to the committed effects digest
// (ErrEffectsDigestMismatch) and the events to the events digest of the
// effects (ErrEventsDigestMismatch). An included result then carries both.
func VerifyExecution(
	tx, effects types.Digest,
	data *types.CheckpointData,
	header *types.CheckpointHeader) (types.InclusionResult, error) {

	result, err := VerifyInclusion(tx, effects, &data.Contents, header)
	if err != nil || result.Status == types.NotFound {
		return result, err
	}

	for i, ed := range data.Contents.Transactions {
		if ed.Transaction != tx {
			continue
		}
		body, ok := data.Transaction(i)
		if !ok {
			return result, nil
		}

		if computed := body.Effects.Digest(); computed != ed.Effects {
			return types.InclusionResult{}, ErrEffectsDigestMismatch{
				Transaction: tx,
				Committed:   ed.Effects,
				Computed:    computed,
			}
		}

		var eventsDigest *types.Digest
		if body.Events != nil {
			d := body.Events.Digest()
			eventsDigest = &d
		}
		if !equalDigests(body.Effects.EventsDigest, eventsDigest) {
			return types.InclusionResult{}, ErrEventsDigestMismatch{
				Transaction: tx,
				Committed:   body.Effects.EventsDigest,
				Computed:    eventsDigest,
			}
		}

		if result.Included() {
			result.Effects = &body.Effects
			result.Events = body.Events
		}
	}

	return result, nil
}

func equalDigests(a, b *types.Digest) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
