package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/os1/backend/internal/app"
	"github.com/zhouzirui/os1/backend/internal/service/capture"
	"github.com/zhouzirui/os1/backend/internal/service/session"
	transcriptService "github.com/zhouzirui/os1/backend/internal/service/transcript"
)

type talkOptions struct {
	device string
	save   string
	format string
}

func newTalkCmd() *cobra.Command {
	opts := &talkOptions{}

	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Start a conversation and stream the transcript until Ctrl+C",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTalk(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.device, "device", "", "Capture device path (defaults to CAPTURE_DEVICE)")
	cmd.Flags().StringVar(&opts.save, "save", "", "Write the transcript to this file on exit")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Transcript file format: json, yaml or text")
	return cmd
}

func runTalk(cmd *cobra.Command, opts *talkOptions) error {
	format, err := transcriptService.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device := opts.device
	if device == "" {
		device = os.Getenv("CAPTURE_DEVICE")
	}
	if device == "" {
		return errors.New("a capture device is required (--device or CAPTURE_DEVICE)")
	}

	a, err := openApp(ctx, app.WithCaptureProvider(capture.NewDeviceProvider(device)))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Close(closeCtx)
	}()

	out := cmd.OutOrStdout()
	snapshot, updates, unsubscribe := a.Transcript.Subscribe()
	defer unsubscribe()
	states, cancelStates := a.Feed.Subscribe()
	defer cancelStates()

	for _, ev := range snapshot {
		fmt.Fprintln(out, renderEvent(ev))
	}

	err = a.Session.Start(ctx, a.Settings.Current())
	if err == nil {
		err = follow(ctx, out, a, updates, states)
	}
	drain(out, updates)

	if opts.save != "" {
		if saveErr := saveTranscript(opts.save, a.Transcript, format); saveErr != nil && err == nil {
			err = saveErr
		}
	}
	return err
}

// follow 打印记录直到用户中断或会话回到 Idle。
func follow(ctx context.Context, out io.Writer, a *app.App, updates <-chan transcriptService.Update, states <-chan session.Transition) error {
	for {
		select {
		case <-ctx.Done():
			if err := a.Session.Stop(context.Background()); err != nil && !errors.Is(err, session.ErrNotActive) {
				return err
			}
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			printUpdate(out, u)
		case t := <-states:
			if t.To == session.Idle {
				if last := a.Session.Status().LastError; last != "" {
					return errors.New(last)
				}
				return nil
			}
		}
	}
}

func drain(out io.Writer, updates <-chan transcriptService.Update) {
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			printUpdate(out, u)
		default:
			return
		}
	}
}

func printUpdate(out io.Writer, u transcriptService.Update) {
	if u.Cleared {
		fmt.Fprintln(out, systemStyle.Render("(transcript cleared)"))
		return
	}
	fmt.Fprintln(out, renderEvent(*u.Event))
}

func saveTranscript(path string, l *transcriptService.Log, format transcriptService.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create transcript file: %w", err)
	}
	defer f.Close()

	if err := transcriptService.Export(f, l.Events(), format); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
