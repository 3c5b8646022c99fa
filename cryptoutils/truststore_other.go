//go:build !linux

package cryptoutils

import (
	"fmt"
	"runtime"
)

var errUnsupportedPlatform = fmt.Errorf("trust: system trust store import is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)

func platformLayouts() []anchorLayout {
	return nil
}
