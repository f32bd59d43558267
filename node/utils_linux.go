//go:build linux
// +build linux

package node

import (
	"golang.org/x/sys/unix"
)

func isFDValid(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

func CloseFd(fd int) error {
	if isFDValid(fd) {
		if err := unix.Close(fd); err != nil {
			return err
		}
	}
	return nil
}
