//go:build !linux

// Package rtprio — приоритет процесса для цикла ФАПЧ: nice и блокировка памяти.
package rtprio

// Raise — заглушка на не-Linux.
func Raise(nice int) error {
	_ = nice
	return nil
}

// Release — заглушка на не-Linux.
func Release() error {
	return nil
}
