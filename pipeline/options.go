package pipeline

import (
	"log"

	"github.com/nvr-ai/go-resample/schedule"
)

// Option configures a Pipeline at construction.
type Option func(*options)

type options struct {
	request    schedule.Request
	precompute bool
	debug      bool
	logger     *log.Logger
	fill       float32
}

func defaultOptions() options {
	return options{
		precompute: true,
		logger:     log.Default(),
	}
}

// WithRequest overrides the transform's schedule defaults. Zero fields keep the
// defaults; the Target field is ignored in favour of the Schedule argument.
func WithRequest(r schedule.Request) Option {
	return func(o *options) { o.request = r }
}

// WithPrecompute controls whether CPU plans tabulate every source coordinate at
// schedule time (the default) or evaluate the mapper inside each lane block.
// Accelerated plans always tabulate.
func WithPrecompute(precompute bool) Option {
	return func(o *options) { o.precompute = precompute }
}

// WithDebug enables [DEBUG] logging of scheduling decisions.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFill sets the value written for out-of-bounds pixels. The default is 0.
func WithFill(v float32) Option {
	return func(o *options) { o.fill = v }
}
