package sizeutil

import (
	"strconv"

	"github.com/spf13/pflag"
)

// Value adapts ParseSize to the pflag.Value interface so size-shaped flags
// like --block-size can be declared directly on a cobra command without an
// intermediate string flag.
type Value struct {
	V uint64
}

func (v *Value) String() string {
	if v == nil {
		return "0"
	}
	return strconv.FormatUint(v.V, 10)
}

func (v *Value) Set(s string) error {
	n, err := ParseSize(s)
	if err != nil {
		return err
	}
	v.V = n
	return nil
}

func (v *Value) Type() string {
	return "size"
}

var _ pflag.Value = (*Value)(nil)
