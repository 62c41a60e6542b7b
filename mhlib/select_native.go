//go:build mhlib

package mhlib

// Default возвращает нативную библиотеку, если сборка выполнена с тегом mhlib.
func Default() Library { return NewNative() }

// Simulated сообщает, работает ли сборка с симулятором вместо прибора.
const Simulated = false
