package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/checkpoint-light/crypto"
	"github.com/tendermint/checkpoint-light/crypto/bls"
	tmmath "github.com/tendermint/checkpoint-light/libs/math"
)

// CommitteeMember is one validator of an epoch's committee.
type CommitteeMember struct {
	// ID identifies the validator. Defaults to AuthorityName(PubKey).
	ID          Digest     `json:"id"`
	PubKey      bls.PubKey `json:"pub_key"`
	StakeWeight uint64     `json:"stake_weight"`
}

// AuthorityName is the default identity of the holder of pubKey.
func AuthorityName(pubKey bls.PubKey) Digest {
	return crypto.DomainChecksum("AuthorityName", pubKey)
}

// Committee is the ordered set of validators allowed to sign checkpoints in
// Epoch. Signer bitmaps index into Members. A Committee obtained from
// NewCommittee or from a decoded, validated message must be treated as
// immutable.
type Committee struct {
	Epoch   uint64            `json:"epoch"`
	Members []CommitteeMember `json:"members"`
}

// NewCommittee copies members into a new committee, fills in default member
// IDs and validates the result.
func NewCommittee(epoch uint64, members []CommitteeMember) (*Committee, error) {
	c := &Committee{
		Epoch:   epoch,
		Members: make([]CommitteeMember, len(members)),
	}
	for i, m := range members {
		if m.ID.IsZero() {
			m.ID = AuthorityName(m.PubKey)
		}
		m.PubKey = append(bls.PubKey(nil), m.PubKey...)
		c.Members[i] = m
	}
	if err := c.ValidateBasic(); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidateBasic checks that the committee is non-empty, member IDs and keys
// are unique and well formed, every weight is positive and the total stake
// does not overflow.
func (c *Committee) ValidateBasic() error {
	if c == nil {
		return errors.New("nil committee")
	}
	if len(c.Members) == 0 {
		return errors.New("committee has no members")
	}

	var (
		ids   = make(map[Digest]struct{}, len(c.Members))
		keys  = make(map[string]struct{}, len(c.Members))
		total uint64
		err   error
	)
	for i, m := range c.Members {
		if m.StakeWeight == 0 {
			return fmt.Errorf("member #%d has zero stake weight", i)
		}
		if err := m.PubKey.ValidateBasic(); err != nil {
			return fmt.Errorf("member #%d: %w", i, err)
		}
		if _, ok := ids[m.ID]; ok {
			return fmt.Errorf("duplicate member id %v", m.ID)
		}
		ids[m.ID] = struct{}{}
		if _, ok := keys[string(m.PubKey)]; ok {
			return fmt.Errorf("duplicate member public key %X", []byte(m.PubKey))
		}
		keys[string(m.PubKey)] = struct{}{}

		total, err = tmmath.SafeAddUint64(total, m.StakeWeight)
		if err != nil {
			return fmt.Errorf("total stake weight: %w", err)
		}
	}
	return nil
}

// Size returns the number of members.
func (c *Committee) Size() int {
	return len(c.Members)
}

// TotalStake returns the sum of all members' stake weight. It assumes
// ValidateBasic passed.
func (c *Committee) TotalStake() uint64 {
	var total uint64
	for _, m := range c.Members {
		total += m.StakeWeight
	}
	return total
}

// Member returns the i-th member.
func (c *Committee) Member(i int) (CommitteeMember, bool) {
	if i < 0 || i >= len(c.Members) {
		return CommitteeMember{}, false
	}
	return c.Members[i], true
}

// IndexOf returns the position of the member with the given ID, or -1.
func (c *Committee) IndexOf(id Digest) int {
	for i, m := range c.Members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Bytes returns the canonical encoding.
func (c *Committee) Bytes() []byte {
	return mustEncode(c)
}

// Hash returns the digest of the canonical encoding.
func (c *Committee) Hash() Digest {
	return crypto.DomainChecksum("Committee", c.Bytes())
}

// Equal reports whether both committees have the same canonical encoding.
func (c *Committee) Equal(other *Committee) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Hash() == other.Hash()
}

// Copy returns a deep copy.
func (c *Committee) Copy() *Committee {
	if c == nil {
		return nil
	}
	cp := &Committee{Epoch: c.Epoch, Members: make([]CommitteeMember, len(c.Members))}
	for i, m := range c.Members {
		m.PubKey = append(bls.PubKey(nil), m.PubKey...)
		cp.Members[i] = m
	}
	return cp
}

func (c *Committee) String() string {
	if c == nil {
		return "nil-Committee"
	}
	return fmt.Sprintf("Committee{epoch:%d members:%d stake:%d hash:%v}",
		c.Epoch, len(c.Members), c.TotalStake(), c.Hash())
}
