package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vitaminmoo/ledctl/internal/analytics"
	"github.com/vitaminmoo/ledctl/internal/protocol"
)

// AnalyticsSync drains the peripheral's telemetry into sink.
func AnalyticsSync(ctx context.Context, e *Env, sink analytics.Sink) error {
	n, err := e.Session.SyncAnalytics(ctx, sink)
	if n > 0 {
		e.ok("Synced %d batch(es)", n)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(e.Out, e.Styles.Muted.Render("No analytics on device"))
	}
	return nil
}

// JSONSink writes each batch to w as one JSON line.
func JSONSink(w io.Writer) analytics.Sink {
	enc := json.NewEncoder(w)
	return analytics.SinkFunc(func(_ context.Context, deviceID string, b *protocol.AnalyticsBatch) error {
		return enc.Encode(analytics.Message{DeviceID: deviceID, Batch: b})
	})
}
