package event

import (
	"sync"
	"time"
)

// envelopePool reuses envelopes on the notification path.
//
// Usage:
//
//	ev := AcquireEnvelope()
//	ev.Type = TypeMessage
//	// ... fill and encode ...
//	ReleaseEnvelope(ev)  // Return to pool after encoding
var envelopePool = sync.Pool{
	New: func() interface{} {
		return &Envelope{}
	},
}

// AcquireEnvelope gets an Envelope from the pool.
// The returned envelope has zero values and must be initialized.
func AcquireEnvelope() *Envelope {
	return envelopePool.Get().(*Envelope)
}

// ReleaseEnvelope returns an Envelope to the pool.
// The envelope is reset to zero values before being pooled.
func ReleaseEnvelope(ev *Envelope) {
	if ev == nil {
		return
	}
	ev.Type = ""
	ev.Key = ""
	ev.Text = ""
	ev.Placeholders = nil
	ev.Payload = nil
	ev.At = time.Time{}

	envelopePool.Put(ev)
}

// Warmup pre-allocates envelopes to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 256

	evs := make([]*Envelope, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireEnvelope())
	}
	for _, ev := range evs {
		ReleaseEnvelope(ev)
	}
}
