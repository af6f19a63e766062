package fetcher

import (
	"strings"

	"github.com/itchan-dev/starter/shared/config"
)

// ShouldUseMockup reports whether a call is served from its fixture: only in
// development, only when the call opts in, only with a fixture path.
func ShouldUseMockup(mode config.Mode, o Options) bool {
	if mode != config.ModeDevelopment {
		return false
	}
	if !o.Mock {
		return false
	}
	return strings.TrimSpace(o.JSONMockup) != ""
}
