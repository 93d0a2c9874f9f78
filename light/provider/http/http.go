package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tendermint/checkpoint-light/light/provider"
	"github.com/tendermint/checkpoint-light/types"
)

const (
	defaultTimeout = 10 * time.Second
	// upper bound on a single checkpoint blob
	maxBodySize = 64 << 20
	latestPath  = "latest"
)

// objectStore reads checkpoints from an object store laid out as
//
//	<base>/<seq>.chk   blob-framed CheckpointData
//	<base>/latest      decimal sequence number of the newest checkpoint
type objectStore struct {
	base   string
	client *http.Client
}

// New creates a HTTP provider reading from the given base URL. If no scheme
// is provided, http will be used by default.
func New(remote string) (provider.Provider, error) {
	return NewWithClient(remote, &http.Client{Timeout: defaultTimeout})
}

// NewWithClient allows you to provide a custom client.
func NewWithClient(remote string, client *http.Client) (provider.Provider, error) {
	// Ensure URL scheme is set (default HTTP) when not provided.
	if !strings.Contains(remote, "://") {
		remote = "http://" + remote
	}
	if _, err := url.Parse(remote); err != nil {
		return nil, fmt.Errorf("invalid remote %q: %w", remote, err)
	}

	return &objectStore{
		base:   strings.TrimSuffix(remote, "/"),
		client: client,
	}, nil
}

func (p *objectStore) String() string {
	return fmt.Sprintf("http{%s}", p.base)
}

// CheckpointData fetches and decodes <base>/<seq>.chk.
func (p *objectStore) CheckpointData(ctx context.Context, seq uint64) (*types.CheckpointData, error) {
	blob, err := p.get(ctx, fmt.Sprintf("%d.chk", seq))
	if err != nil {
		return nil, err
	}

	data, err := types.CheckpointDataFromBlob(blob)
	if err != nil {
		return nil, provider.ErrBadCheckpoint{Reason: err}
	}
	if got := data.Certificate.Header.SequenceNumber; got != seq {
		return nil, provider.ErrBadCheckpoint{
			Reason: fmt.Errorf("asked for checkpoint %d, got %d", seq, got),
		}
	}
	return data, nil
}

// LatestSequence fetches <base>/latest.
func (p *objectStore) LatestSequence(ctx context.Context) (uint64, error) {
	bz, err := p.get(ctx, latestPath)
	if err != nil {
		return 0, err
	}
	seq, err := strconv.ParseUint(strings.TrimSpace(string(bz)), 10, 64)
	if err != nil {
		return 0, provider.ErrBadCheckpoint{Reason: fmt.Errorf("bad latest sequence: %w", err)}
	}
	return seq, nil
}

func (p *objectStore) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/"+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// connection refused, timeouts and the like
		return nil, fmt.Errorf("%w: %v", provider.ErrNoResponse, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, provider.ErrCheckpointNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s", provider.ErrNoResponse, resp.Status)
	default:
		return nil, fmt.Errorf("unexpected response to %s: %s", path, resp.Status)
	}

	bz, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", provider.ErrNoResponse, err)
	}
	if len(bz) > maxBodySize {
		return nil, provider.ErrBadCheckpoint{Reason: fmt.Errorf("response exceeds %d bytes", maxBodySize)}
	}
	return bz, nil
}
