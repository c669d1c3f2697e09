package relay

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/bamsammich/relay/internal/model"
)

// maxStreamBurst bounds a single admitted read so one large file cannot
// starve the other workers sharing the budget.
const maxStreamBurst = 1 << 20

// bandwidth is the byte budget shared by every file an Orchestrator
// copies. A nil *bandwidth is unlimited.
type bandwidth struct {
	limiter *rate.Limiter
}

// newBandwidth returns a budget of bytesPerSec, or nil when bytesPerSec
// is not positive.
func newBandwidth(bytesPerSec int64) *bandwidth {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := int(min(bytesPerSec, maxStreamBurst))
	return &bandwidth{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// stream charges reads of d's source stream against the budget.
func (b *bandwidth) stream(ctx context.Context, d model.FileDescriptor, r io.Reader) io.Reader {
	if b == nil {
		return r
	}
	return &throttledStream{ctx: ctx, r: r, limiter: b.limiter, sourcePath: d.SourcePath}
}

type throttledStream struct {
	ctx        context.Context
	r          io.Reader
	limiter    *rate.Limiter
	sourcePath string
}

func (s *throttledStream) Read(p []byte) (int, error) {
	// WaitN rejects anything above the burst.
	if len(p) > s.limiter.Burst() {
		p = p[:s.limiter.Burst()]
	}
	n, err := s.r.Read(p)
	if n > 0 {
		if werr := s.limiter.WaitN(s.ctx, n); werr != nil {
			return n, fmt.Errorf("throttle %s: %w", s.sourcePath, werr)
		}
	}
	return n, err
}
