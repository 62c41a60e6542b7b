//go:build !mhlib

package mhlib

// Default возвращает симулятор с одним устройством. Для работы с прибором
// соберите программу с тегом mhlib.
func Default() Library { return NewSimulator(DefaultSimConfig()) }

// Simulated сообщает, работает ли сборка с симулятором вместо прибора.
const Simulated = true
