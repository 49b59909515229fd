package cli

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
)

// newUploadProgress builds a progress bar for a known-size upload,
// themed the way the teacher's transfer.ProgressTracker is, but
// driven directly by client.CreateParams.OnProgress rather than by
// wrapping an io.Reader with its own tracker type: the watchdog
// itself already lives in internal/client.
func newUploadProgress(total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("uploading"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}
