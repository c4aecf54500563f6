package models

import "strings"

// Action: каноническое действие решения.
type Action string

const (
	ActionOpenLong      Action = "open_long"
	ActionOpenShort     Action = "open_short"
	ActionCloseLong     Action = "close_long"
	ActionCloseShort    Action = "close_short"
	ActionClosePosition Action = "close_position"
	ActionHold          Action = "hold"
	ActionWait          Action = "wait"

	// legacy: частичные команды старого протокола
	ActionAddPosition    Action = "add_position"
	ActionReducePosition Action = "reduce_position"
)

// CanonicalActions: закрытое множество глаголов.
var CanonicalActions = []Action{
	ActionOpenLong,
	ActionOpenShort,
	ActionCloseLong,
	ActionCloseShort,
	ActionClosePosition,
	ActionHold,
	ActionWait,
}

// алиасы, не зависящие от текущей позиции
var actionAliases = map[string]Action{
	"open_long":  ActionOpenLong,
	"long":       ActionOpenLong,
	"buy_long":   ActionOpenLong,
	"go_long":    ActionOpenLong,
	"enter_long": ActionOpenLong,

	"open_short":  ActionOpenShort,
	"short":       ActionOpenShort,
	"sell_short":  ActionOpenShort,
	"go_short":    ActionOpenShort,
	"enter_short": ActionOpenShort,

	"close_long": ActionCloseLong,
	"exit_long":  ActionCloseLong,
	"sell_long":  ActionCloseLong,

	"close_short": ActionCloseShort,
	"exit_short":  ActionCloseShort,
	"buy_short":   ActionCloseShort,
	"cover":       ActionCloseShort,

	"close_position": ActionClosePosition,
	"close":          ActionClosePosition,
	"exit":           ActionClosePosition,
	"flat":           ActionClosePosition,
	"close_all":      ActionClosePosition,

	"hold": ActionHold,
	"keep": ActionHold,

	"wait":      ActionWait,
	"none":      ActionWait,
	"no_action": ActionWait,
	"skip":      ActionWait,
	"observe":   ActionWait,

	"add_position":    ActionAddPosition,
	"reduce_position": ActionReducePosition,
}

// NormalizeAction приводит сырое действие к каноническому виду с учётом стороны позиции.
// Неизвестная строка возвращается как есть, чтобы её отклонили явно ниже по потоку.
func NormalizeAction(raw string, side PositionSide) Action {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)

	switch key {
	case "buy":
		if side == PositionShort {
			return ActionCloseShort
		}
		return ActionOpenLong
	case "sell":
		if side == PositionLong {
			return ActionCloseLong
		}
		return ActionOpenShort
	}

	a, ok := actionAliases[key]
	if !ok {
		return Action(raw)
	}
	if a == ActionClosePosition {
		return a.Directional(side)
	}
	return a
}

// Directional разворачивает close_position в направленное закрытие по фактической позиции.
func (a Action) Directional(side PositionSide) Action {
	if a != ActionClosePosition {
		return a
	}
	switch side {
	case PositionLong:
		return ActionCloseLong
	case PositionShort:
		return ActionCloseShort
	default:
		return a
	}
}

func (a Action) IsOpen() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

func (a Action) IsClose() bool {
	return a == ActionCloseLong || a == ActionCloseShort || a == ActionClosePosition
}

func (a Action) IsPassive() bool {
	return a == ActionHold || a == ActionWait
}

func (a Action) IsLegacy() bool {
	return a == ActionAddPosition || a == ActionReducePosition
}

// Valid: true только для канонического множества.
func (a Action) Valid() bool {
	return a.IsOpen() || a.IsClose() || a.IsPassive()
}

// OpenSide: сторона позиции, которую открывает действие.
func (a Action) OpenSide() PositionSide {
	switch a {
	case ActionOpenLong:
		return PositionLong
	case ActionOpenShort:
		return PositionShort
	default:
		return PositionFlat
	}
}

func (a Action) String() string { return string(a) }
