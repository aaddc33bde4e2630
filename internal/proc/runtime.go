package proc

import "runtime"

func yieldHost() { runtime.Gosched() }
