package download

import (
	"fmt"
	"log/slog"
	"time"
)

// Event is a single progress notification.
//
// Intermediate events carry Bytes and, in fraction mode, Fraction.
// Every download delivers exactly one event with Final set, after which
// the sink is never called again for that download.
type Event struct {
	// Bytes is the cumulative number of body bytes written.
	Bytes int64
	// Total is the declared content length, or -1 if unknown.
	Total int64
	// Fraction is Bytes/Total. It is only set in fraction mode and is
	// not clamped: a server that under-declares its length produces
	// values above 1 before the download fails with
	// [ErrContentLengthMismatch]. A declared length of zero produces no
	// intermediate events.
	Fraction float64

	Final  bool
	Status Status
	Err    error

	// Dropped counts intermediate events discarded because the receiver
	// fell behind. It is only set on the final event of a channel-based
	// progress stream.
	Dropped int
}

// Sink receives progress events. It is called from the goroutine
// running the download and must not block for long.
type Sink func(Event)

type progressMode uint8

const (
	progressNone progressMode = iota
	progressBytes
	progressFraction
)

// reporter fans a transfer's cumulative count out to the configured
// sink and, when enabled, to periodic log lines.
type reporter struct {
	mode  progressMode
	sink  Sink
	total int64
	log   *progressLog
	final bool
}

func (r *reporter) update(written int64) {
	if r.log != nil {
		r.log.update(written)
	}

	if r.sink == nil {
		return
	}

	switch r.mode {
	case progressBytes:
		r.sink(Event{Bytes: written, Total: r.total})
	case progressFraction:
		// A zero declared length has no meaningful fraction; the
		// mismatch surfaces on the final event.
		if r.total <= 0 {
			return
		}
		r.sink(Event{Bytes: written, Total: r.total, Fraction: float64(written) / float64(r.total)})
	}
}

// finish emits the terminal event. Only the first call has any effect.
func (r *reporter) finish(status Status, written int64, err error) {
	if r.final {
		return
	}
	r.final = true

	if r.log != nil && status == StatusSucceeded {
		r.log.transferred = written
		r.log.emit("download complete")
	}

	if r.sink == nil {
		return
	}

	r.sink(Event{
		Bytes:  written,
		Total:  r.total,
		Final:  true,
		Status: status,
		Err:    err,
	})
}

// progressLog logs download progress at most once per second.
type progressLog struct {
	logger      *slog.Logger
	url         string
	transferred int64
	total       int64
	startTime   time.Time
	lastLog     time.Time
}

func (pl *progressLog) update(written int64) {
	pl.transferred = written

	if time.Since(pl.lastLog) >= time.Second {
		pl.lastLog = time.Now()
		pl.emit("downloading")
	}
}

func (pl *progressLog) emit(msg string) {
	elapsed := time.Since(pl.startTime)
	attrs := []any{
		"url", pl.url,
		"elapsed", elapsed.Round(time.Millisecond),
		"transferred", pl.transferred,
		"total", pl.total,
	}
	if pl.total > 0 {
		attrs = append(attrs, "progress", fmt.Sprintf("%.1f%%", float64(pl.transferred)/float64(pl.total)*100))
	}
	if secs := elapsed.Seconds(); secs > 0 {
		attrs = append(attrs, "mbps", fmt.Sprintf("%.2f", float64(pl.transferred)/secs/(1024*1024)))
	}

	pl.logger.Info(msg, attrs...)
}
