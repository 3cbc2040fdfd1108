//go:build !linux

package siteclear

func processRSSBytes() (uint64, bool) { return 0, false }
