package runtime

import (
	"bytes"
	goruntime "runtime"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/script-runtime/engine"
)

// CheckAffinity enables owner-goroutine verification on every runtime
// operation. Off by default; the stack capture behind goid is too slow for
// hot paths outside debugging sessions.
var CheckAffinity = false

func goid() uint64 {
	var buf [64]byte
	n := goruntime.Stack(buf[:], false)
	// "goroutine 123 [running]:"
	s := buf[:n]
	s = bytes.TrimPrefix(s, []byte("goroutine "))
	if i := bytes.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	id, err := strconv.ParseUint(string(s), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (r *Runtime) checkAffinity() {
	if !CheckAffinity {
		return
	}
	if id := goid(); id != r.ownerID {
		engine.Logger().DPanic("runtime touched from foreign goroutine",
			zap.Uint64("owner", r.ownerID),
			zap.Uint64("caller", id))
	}
}
