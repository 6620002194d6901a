//go:build !unix

package jit

import (
	"github.com/pkg/errors"

	"github.com/arc-language/core-jit/target"
)

func mapExecutable([]byte) ([]byte, error) {
	return nil, errors.Wrap(target.ErrUnsupportedTarget, "no executable memory on this platform")
}

func unmap([]byte) error { return nil }
