//go:build !yargo && (!cgo || noyara)

package engine

import "fmt"

// Backend names the compiled-in engine.
const Backend = "none"

// New stub for builds without a YARA backend.
func New(cfg Config) (Engine, error) {
	return nil, fmt.Errorf("%w: no YARA backend (build with CGO_ENABLED=1 and without -tags noyara for libyara, or with -tags yargo)", ErrCompile)
}
