package upload

import (
	"golang.org/x/time/rate"

	"github.com/mkesani1/intake-go/types"
)

// defaultProgressPerSecond caps how often byte-counter updates reach the
// session. The first and final updates always pass.
const defaultProgressPerSecond = 20

type progressGate struct {
	lim *rate.Limiter
}

func newProgressGate(perSecond float64) *progressGate {
	if perSecond <= 0 {
		perSecond = defaultProgressPerSecond
	}
	return &progressGate{lim: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (g *progressGate) allow(p types.UploadProgress) bool {
	if p.LoadedBytes == 0 || p.LoadedBytes >= p.TotalBytes {
		return true
	}
	return g.lim.Allow()
}

// pushLatest delivers p on a capacity-1 channel, replacing any undelivered
// value. Consumers always read the freshest progress and a slow consumer
// never stalls the transfer.
func pushLatest(ch chan types.UploadProgress, p types.UploadProgress) {
	select {
	case ch <- p:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}
