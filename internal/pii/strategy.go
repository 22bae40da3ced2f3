package pii

import (
	"errors"
	"fmt"
)

// Level is the coarse user-facing privacy setting.
type Level string

const (
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHigh    Level = "high"
	LevelMaximum Level = "maximum"
)

// ErrUnknownLevel signals an unrecognized privacy level. Callers are
// expected to validate membership with ValidLevel before resolving.
var ErrUnknownLevel = errors.New("unknown privacy level")

// ErrUnknownCategory signals a category tag outside the catalog.
var ErrUnknownCategory = errors.New("unknown pii category")

// Levels lists the recognized privacy levels, least to most aggressive.
func Levels() []Level {
	return []Level{LevelLow, LevelMedium, LevelHigh, LevelMaximum}
}

// ValidLevel reports whether l is a recognized privacy level.
func ValidLevel(l Level) bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh, LevelMaximum:
		return true
	}
	return false
}

// ResolveLevel maps a privacy level to its canonical strategy preset.
// The mappings are fixed constants.
func ResolveLevel(l Level) (Options, error) {
	switch l {
	case LevelLow:
		return Options{Strategy: StrategyPartial, PreserveFormat: true, VisibleSuffix: 4}, nil
	case LevelMedium:
		return Options{Strategy: StrategyPartial, PreserveFormat: true, VisibleSuffix: 2}, nil
	case LevelHigh:
		return Options{Strategy: StrategyRedact}, nil
	case LevelMaximum:
		return Options{Strategy: StrategyHash}, nil
	}
	return Options{}, fmt.Errorf("%w: %q", ErrUnknownLevel, l)
}
