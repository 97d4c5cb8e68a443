package cmd

import (
	"context"
	"cyberia/observability"
	"cyberia/services"
	"cyberia/types"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/schollz/progressbar/v3"
)

// Fetch runs a single job in-process and renders its transfer progress on
// out. It returns the job's error, or nil when the package was installed.
func Fetch(raw string, plugin *Plugin, out io.Writer) error {
	appID, err := services.ParseAppID(raw)
	if err != nil {
		return err
	}
	if plugin == nil {
		plugin = NewPlugin(nil, observability.NewConfig())
	}
	if out == nil {
		out = os.Stdout
	}
	if err := plugin.Load(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := newFetchProgress(appID, out)
	plugin.Observe(progress.update)

	_, results := plugin.Jobs.Enqueue(appID)

	var result services.Result
	select {
	case result = <-results:
	case <-ctx.Done():
		plugin.Jobs.CancelDownload(raw)
		result = <-results
	}
	progress.finish()

	if err := plugin.Unload(context.Background()); err != nil {
		return err
	}

	switch result.Outcome {
	case services.OutcomeDone:
		fmt.Fprintf(out, "App %d installed via %s\n", appID, result.API)
		return nil
	case services.OutcomeCancelled:
		return fmt.Errorf("app %d: download cancelled", appID)
	default:
		return fmt.Errorf("app %d: %w", appID, result.Err)
	}
}

// fetchProgress draws one byte progress bar per endpoint attempt
type fetchProgress struct {
	appID int
	out   io.Writer

	mu  sync.Mutex
	bar *progressbar.ProgressBar
	api string
}

func newFetchProgress(appID int, out io.Writer) *fetchProgress {
	return &fetchProgress{appID: appID, out: out}
}

func (p *fetchProgress) update(appID int, state types.JobState) {
	if appID != p.appID {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch state.Status {
	case types.JobStatusChecking:
		if state.CurrentAPI != "" && state.CurrentAPI != p.api {
			p.closeBar()
			p.api = state.CurrentAPI
			fmt.Fprintf(p.out, "Trying %s\n", state.CurrentAPI)
		}
	case types.JobStatusDownloading:
		if p.bar == nil {
			total := state.TotalBytes
			if total <= 0 {
				total = -1
			}
			p.bar = progressbar.NewOptions64(total,
				progressbar.OptionSetWriter(p.out),
				progressbar.OptionSetDescription(fmt.Sprintf("Downloading %d", p.appID)),
				progressbar.OptionShowBytes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.out) }),
			)
		}
		p.bar.Set64(state.BytesRead)
	case types.JobStatusInstalling:
		p.closeBar()
		fmt.Fprintln(p.out, "Installing with ACCELA")
	}
}

func (p *fetchProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeBar()
}

func (p *fetchProgress) closeBar() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
