package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/vitaminmoo/ledctl/internal/store"
)

// PairingsList prints every remembered device.
func PairingsList(w io.Writer, styles Styles, p *store.Pairings) error {
	list, err := p.List()
	if err != nil {
		return fmt.Errorf("failed to list pairings: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No paired devices.")
		fmt.Fprintln(w, styles.Muted.Render("Claim one with: ledctl claim --user <id>"))
		return nil
	}
	fmt.Fprintf(w, "Found %d paired device(s):\n\n", len(list))
	for _, rec := range list {
		fmt.Fprintf(w, "  %-24s  %-16s  %-16s  %s\n",
			rec.DeviceID,
			rec.DeviceName,
			rec.UserID,
			rec.PairedAt.Local().Format(time.DateTime))
	}
	return nil
}

// PairingsForget drops a device from the local list without contacting it.
func PairingsForget(w io.Writer, styles Styles, p *store.Pairings, deviceID string) error {
	removed, err := p.Remove(deviceID)
	if err != nil {
		return fmt.Errorf("failed to forget %s: %w", deviceID, err)
	}
	if !removed {
		return fmt.Errorf("device not paired: %s", deviceID)
	}
	fmt.Fprintln(w, styles.Success.Render("Forgot "+deviceID))
	return nil
}
