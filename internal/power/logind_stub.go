//go:build !linux

package power

import (
	"context"
	"errors"

	logx "lockwatch/pkg/logx"
)

var ErrUnsupported = errors.New("power: logind source requires linux")

// LogindSource is only available on linux; this stub keeps the package
// building on other platforms (tests use ChanSource).
type LogindSource struct{}

func NewLogindSource(log logx.Logger) *LogindSource { return &LogindSource{} }

func (s *LogindSource) Start(ctx context.Context) error { return ErrUnsupported }
func (s *LogindSource) Stop()                           {}
func (s *LogindSource) Events() <-chan Event            { return nil }
