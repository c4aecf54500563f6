package models

// Side: сторона ордера: "BUY"/"SELL".
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite: закрывающая сторона.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide: направление позиции, всегда выводится из знака количества.
type PositionSide string

const (
	PositionFlat  PositionSide = ""
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// EntrySide: сторона ордера, открывающего позицию этого направления.
func (p PositionSide) EntrySide() Side {
	if p == PositionShort {
		return SideSell
	}
	return SideBuy
}

// ExitSide: сторона reduce-only ордера, закрывающего позицию.
func (p PositionSide) ExitSide() Side {
	return p.EntrySide().Opposite()
}

func (p PositionSide) String() string {
	if p == PositionFlat {
		return "FLAT"
	}
	return string(p)
}
