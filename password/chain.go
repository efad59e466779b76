package password

import "errors"

// Chain hashes with its first scheme and verifies with whichever scheme
// recognises the stored hash.
type Chain struct {
	schemes []Scheme
}

// NewChain returns a chain whose primary scheme is primary.
func NewChain(primary Scheme, legacy ...Scheme) (*Chain, error) {
	if primary == nil {
		return nil, errors.New("password: chain needs a primary scheme")
	}
	c := &Chain{schemes: []Scheme{primary}}
	for _, s := range legacy {
		if s != nil {
			c.schemes = append(c.schemes, s)
		}
	}
	return c, nil
}

func (c *Chain) Hash(password string) (string, error) {
	return c.schemes[0].Hash(password)
}

func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	for _, s := range c.schemes {
		if s.Recognizes(encodedHash) {
			return s.Verify(password, encodedHash)
		}
	}
	return false, ErrUnrecognizedHash
}

func (c *Chain) Recognizes(encodedHash string) bool {
	for _, s := range c.schemes {
		if s.Recognizes(encodedHash) {
			return true
		}
	}
	return false
}

// NeedsUpgrade is true for any hash not produced by the primary scheme
// and for primary hashes with outdated parameters.
func (c *Chain) NeedsUpgrade(encodedHash string) (bool, error) {
	primary := c.schemes[0]
	if !primary.Recognizes(encodedHash) {
		if !c.Recognizes(encodedHash) {
			return false, ErrUnrecognizedHash
		}
		return true, nil
	}
	return primary.NeedsUpgrade(encodedHash)
}
