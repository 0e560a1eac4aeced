package bluez

import "log/slog"

type Options struct {
	AdapterID string // "hci0" by default
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.AdapterID == "" {
		o.AdapterID = "hci0"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
