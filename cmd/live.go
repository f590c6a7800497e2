package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/amirhossein5/rollcall/internal/live"
	"github.com/amirhossein5/rollcall/internal/source"
	"github.com/amirhossein5/rollcall/internal/stream"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"github.com/spf13/cobra"
)

type liveOptions struct {
	device  string
	mjpeg   string
	browser bool
	serve   bool
}

var liveOpts liveOptions

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run a live attendance session from a camera, stream or browsers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLive(cmd.Context(), cmd.OutOrStdout(), liveOpts)
	},
}

func init() {
	liveCmd.Flags().StringVar(&liveOpts.device, "source", "0", "Camera index, video file or RTSP URL")
	liveCmd.Flags().StringVar(&liveOpts.mjpeg, "mjpeg", "", "Read concatenated JPEG frames from a file, or - for stdin")
	liveCmd.Flags().BoolVar(&liveOpts.browser, "browser", false, "Take frames from browsers connected to /camera-websocket")
	liveCmd.Flags().BoolVar(&liveOpts.serve, "http", true, "Serve the live page, MJPEG stream and controls")
	rootCmd.AddCommand(liveCmd)
}

func runLive(ctx context.Context, out io.Writer, opts liveOptions) error {
	a := rollcall
	log := logger.Named("live.cmd")

	liveIdent, err := a.identifier(a.cfg.LiveConfidencePrecision)
	if err != nil {
		return err
	}
	photo, err := a.photoPipeline()
	if err != nil {
		return err
	}

	var (
		src    live.FrameSource
		closer io.Closer
		camera *source.Websocket
	)
	switch {
	case opts.browser:
		camera = source.NewWebsocket()
		src, closer = camera, camera
	case opts.mjpeg != "":
		r := io.ReadCloser(os.Stdin)
		if opts.mjpeg != "-" {
			f, err := os.Open(opts.mjpeg)
			if err != nil {
				return fmt.Errorf("open mjpeg stream: %w", err)
			}
			r = f
		}
		m := source.NewMJPEG(r)
		src, closer = m, m
	default:
		c, err := source.OpenCapture(opts.device)
		if err != nil {
			return err
		}
		src, closer = c, c
	}
	defer closer.Close()

	frames := stream.NewBroadcaster(50 * time.Millisecond)
	deps := live.Deps{
		Identifier: liveIdent,
		Photo:      photo,
		Roster:     a.store,
		Publisher:  a.publisher,
		Renderer:   live.RenderFunc(func(f live.Frame) error { return frames.Render(f.Image) }),
		Metrics:    a.metrics,
	}
	if camera != nil {
		deps.Notifier = camera
	}
	ctrl := live.New(deps, live.Options{
		Cadence:     a.cfg.Cadence,
		Scale:       a.cfg.LiveScale,
		Padding:     a.cfg.LivePadding,
		Upsample:    a.cfg.LiveUpsample,
		Workers:     a.cfg.RegionWorkers,
		SnapshotDir: a.cfg.SnapshotDir,
		DebugImage:  a.cfg.DebugImage,
	})

	if opts.serve {
		srv := &server{
			ctrl:    ctrl,
			frames:  frames,
			camera:  camera,
			store:   a.store,
			deleter: a.deleter(),
			metrics: a.metrics,
			log:     log,
		}
		httpSrv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: srv.routes(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Info(ctx, "starting webserver", logger.String("addr", a.cfg.HTTPAddr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "webserver failed", logger.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	if camera != nil {
		go forwardCommands(ctx, ctrl, camera.Commands())
	}
	if opts.mjpeg != "-" {
		keys := make(chan string)
		go readKeys(os.Stdin, keys)
		go forwardCommands(ctx, ctrl, keys)
	}
	fmt.Fprintln(out, "Commands: 's' + Enter (Snapshot) | 'q' + Enter (Quit)")

	sum, err := ctrl.Run(ctx, src)
	fmt.Fprintf(out, "Session %s ended after %d frames, %d present.\n", sum.SessionID, sum.Frames, len(sum.Present))
	if sum.Report != "" {
		fmt.Fprintf(out, "Live session report saved: %s\n", sum.Report)
	}
	return err
}

func forwardCommands(ctx context.Context, ctrl *live.Controller, words <-chan string) {
	log := logger.Named("live.cmd")
	for {
		select {
		case <-ctx.Done():
			return
		case word, ok := <-words:
			if !ok {
				return
			}
			cmd, err := live.ParseCommand(word)
			if err != nil {
				log.Debug(ctx, "ignoring input", logger.String("input", word))
				continue
			}
			if !ctrl.Send(cmd) {
				log.Warn(ctx, "command dropped", logger.String("command", cmd.String()))
			}
		}
	}
}

func readKeys(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}
