//go:build linux

// Package rtprio — приоритет процесса для цикла ФАПЧ: nice и блокировка памяти.
package rtprio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Raise устанавливает nice процесса и блокирует страницы в памяти (mlockall).
// Требует CAP_SYS_NICE / CAP_IPC_LOCK; при отказе возвращает ошибку, процесс продолжает работу.
func Raise(nice int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, nice); err != nil {
		return fmt.Errorf("setpriority %d: %w", nice, err)
	}
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	return nil
}

// Release снимает блокировку памяти.
func Release() error {
	return unix.Munlockall()
}
