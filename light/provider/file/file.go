// Package file provides checkpoints from a local directory laid out like the
// object store served by the http provider:
//
//	<dir>/<seq>.chk   blob-framed CheckpointData
//	<dir>/latest      decimal sequence number of the newest checkpoint
//
// When latest is missing, the highest <seq>.chk in the directory is used.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/creachadair/atomicfile"

	"github.com/tendermint/checkpoint-light/light/provider"
	"github.com/tendermint/checkpoint-light/types"
)

const (
	checkpointExt = ".chk"
	latestFile    = "latest"
)

type dir struct {
	path string
}

// New creates a provider reading from the given directory.
func New(path string) (provider.Provider, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	return &dir{path: path}, nil
}

func (p *dir) String() string {
	return fmt.Sprintf("file{%s}", p.path)
}

func (p *dir) CheckpointData(ctx context.Context, seq uint64) (*types.CheckpointData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(filepath.Join(p.path, CheckpointFileName(seq)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, provider.ErrCheckpointNotFound
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrNoResponse, err)
	}

	data, err := types.CheckpointDataFromBlob(blob)
	if err != nil {
		return nil, provider.ErrBadCheckpoint{Reason: err}
	}
	if got := data.Certificate.Header.SequenceNumber; got != seq {
		return nil, provider.ErrBadCheckpoint{
			Reason: fmt.Errorf("%s holds checkpoint %d", CheckpointFileName(seq), got),
		}
	}
	return data, nil
}

func (p *dir) LatestSequence(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	bz, err := os.ReadFile(filepath.Join(p.path, latestFile))
	switch {
	case err == nil:
		seq, err := strconv.ParseUint(strings.TrimSpace(string(bz)), 10, 64)
		if err != nil {
			return 0, provider.ErrBadCheckpoint{Reason: fmt.Errorf("bad latest sequence: %w", err)}
		}
		return seq, nil
	case !errors.Is(err, fs.ErrNotExist):
		return 0, fmt.Errorf("%w: %v", provider.ErrNoResponse, err)
	}

	entries, err := os.ReadDir(p.path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", provider.ErrNoResponse, err)
	}
	var (
		latest uint64
		found  bool
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, checkpointExt) {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, checkpointExt), 10, 64)
		if err != nil {
			continue
		}
		if !found || seq > latest {
			latest, found = seq, true
		}
	}
	if !found {
		return 0, provider.ErrCheckpointNotFound
	}
	return latest, nil
}

// CheckpointFileName is the name of the file holding checkpoint seq.
func CheckpointFileName(seq uint64) string {
	return strconv.FormatUint(seq, 10) + checkpointExt
}

// WriteCheckpoint stores data in the directory under its sequence number and
// raises the latest marker if data is newer.
func WriteCheckpoint(path string, data *types.CheckpointData, compress bool) error {
	blob, err := data.Blob(compress)
	if err != nil {
		return err
	}
	seq := data.Certificate.Header.SequenceNumber
	if _, err := atomicfile.WriteAll(filepath.Join(path, CheckpointFileName(seq)), bytes.NewReader(blob), 0644); err != nil {
		return err
	}

	p := &dir{path: path}
	if latest, err := p.LatestSequence(context.Background()); err == nil && latest > seq {
		return nil
	}
	marker := strings.NewReader(strconv.FormatUint(seq, 10) + "\n")
	_, err = atomicfile.WriteAll(filepath.Join(path, latestFile), marker, 0644)
	return err
}
