package fslog

import "unsafe"

func pointerOf(l *Log) uintptr { return uintptr(unsafe.Pointer(l)) }
