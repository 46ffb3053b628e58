package assert

import "fmt"

func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
}

func NotEmptyStr(str string) {
	if str == "" {
		panic("expected string to be non-empty")
	}
}

// NonNegative panics when a configured weight or offset is below zero.
func NonNegative(name string, value float64) {
	if value < 0 {
		panic(fmt.Sprintf("expected %s to be non-negative, got %v", name, value))
	}
}
