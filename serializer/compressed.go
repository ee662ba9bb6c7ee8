package serializer

import (
	"fmt"

	"github.com/kjk/kvstore/u"
)

// Algorithm is a compression algorithm
type Algorithm string

const (
	Zstd   Algorithm = "zstd"
	Brotli Algorithm = "brotli"
)

// Compressed compresses the output of another serializer
type Compressed struct {
	Inner     Serializer
	Algorithm Algorithm
}

func NewCompressed(inner Serializer, algo Algorithm) (*Compressed, error) {
	if inner == nil {
		return nil, fmt.Errorf("must provide inner serializer")
	}
	switch algo {
	case Zstd, Brotli:
		// ok
	default:
		return nil, fmt.Errorf("unknown compression '%s'", algo)
	}
	return &Compressed{
		Inner:     inner,
		Algorithm: algo,
	}, nil
}

func (c *Compressed) Name() string {
	return c.Inner.Name() + "+" + string(c.Algorithm)
}

func (c *Compressed) Serialize(v any) ([]byte, error) {
	d, err := c.Inner.Serialize(v)
	if err != nil {
		return nil, err
	}
	// empty means "no value" to the store, keep it that way
	if len(d) == 0 {
		return nil, nil
	}
	switch c.Algorithm {
	case Zstd:
		return u.ZstdCompress(d)
	case Brotli:
		return u.BrotliCompress(d)
	}
	return nil, fmt.Errorf("unknown compression '%s'", c.Algorithm)
}

func (c *Compressed) Deserialize(d []byte, v any) error {
	var err error
	switch c.Algorithm {
	case Zstd:
		d, err = u.ZstdDecompress(d)
	case Brotli:
		d, err = u.BrotliDecompress(d)
	default:
		err = fmt.Errorf("unknown compression '%s'", c.Algorithm)
	}
	if err != nil {
		return err
	}
	return c.Inner.Deserialize(d, v)
}
