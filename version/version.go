package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = ClientSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// ClientSemVer is the current version of the checkpoint light client.
	// It's the Semantic Version of the software.
	ClientSemVer = "0.1.0"
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

// Uint64 returns the Protocol version as a uint64.
func (p Protocol) Uint64() uint64 {
	return uint64(p)
}

var (
	// WireProtocol versions the canonical encodings of checkpoints and
	// committees, the blob framing and the signed checkpoint message.
	WireProtocol Protocol = 1

	// StoreProtocol versions the trusted store layout and its snapshots.
	StoreProtocol Protocol = 1
)
