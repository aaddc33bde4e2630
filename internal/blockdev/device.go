// Package blockdev defines the block-device abstraction the buffer
// cache issues I/O through, plus two concrete implementations: a
// file-backed device for real disk images and a fault-injecting
// in-memory device for crash/recovery tests. Grounded on
// original_source/kernel/drivers/virtio_disk.c's struct Block_Device
// read/write entry points, generalized from one hardwired virtio MMIO
// device to an interface so tests never need real disk hardware.
package blockdev

import "github.com/jrmenzel/vimix/internal/common"

// Device is anything the buffer cache can read and write 1024-byte
// blocks through. Read and Write block the caller until the transfer
// completes or fails; real drivers do this via interrupt + sleep
// (spec.md §4.7 "device I/O occurs outside the buffer-table spinlock"),
// which bio arranges by calling these off of the buffer's sleep-lock
// rather than any spinlock.
type Device interface {
	ReadBlock(blockno uint32, dst []byte) common.Err_t
	WriteBlock(blockno uint32, src []byte) common.Err_t
	NumBlocks() uint32
}
