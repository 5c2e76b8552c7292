package analysis

import "fmt"

// Status defines the processing states a file moves through during a batch
// run. Terminal states are Skipped, Success, and Failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// ChannelLabel returns the conventional label for channel index (0-based):
// "left"/"right" when a two-channel signal is fanned out in parallel (the
// binaural case), "channel_{index+1}" for every other combination.
func ChannelLabel(index, channels int, binaural bool) string {
	if binaural && channels == 2 {
		if index == 0 {
			return "left"
		}
		return "right"
	}
	return fmt.Sprintf("channel_%d", index+1)
}
