package types

import (
	"fmt"
	"strings"
)

type Side string

type Direction string

const (
	SideTypeBuy  Side = "BUY"
	SideTypeSell Side = "SELL"

	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionFlat  Direction = "FLAT"
)

// ParseSide accepts buy/sell in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SideTypeBuy):
		return SideTypeBuy, nil
	case string(SideTypeSell):
		return SideTypeSell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

func (s Side) Valid() bool {
	return s == SideTypeBuy || s == SideTypeSell
}

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() int64 {
	if s == SideTypeSell {
		return -1
	}
	return 1
}

func DirectionOf(quantity int64) Direction {
	switch {
	case quantity > 0:
		return DirectionLong
	case quantity < 0:
		return DirectionShort
	}
	return DirectionFlat
}
