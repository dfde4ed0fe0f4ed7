package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wads/tripscribe/internal/bus"
	"github.com/wads/tripscribe/internal/config"
	"github.com/wads/tripscribe/internal/metrics"
	"github.com/wads/tripscribe/internal/notify"
	"github.com/wads/tripscribe/internal/pipeline"
	"github.com/wads/tripscribe/internal/recording"
)

// FrameSource is the capture side of a trip. The frame channel closes when capture ends.
type FrameSource interface {
	Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error)
	Stop() error
	Wait()
}

type Deps struct {
	Pipeline  *pipeline.Pipeline
	NewSource func() FrameSource
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Manager   *config.Manager // optional, enables hot reload
	Logger    *zap.SugaredLogger
	Version   string

	SockPath    string
	PidPath     string
	MetricsAddr string // empty disables the metrics endpoint
}

// activeTrip tracks the capture goroutine of one trip. ended is claimed by whoever
// ends the trip first: a toggle or the capture source closing on its own.
type activeTrip struct {
	source FrameSource
	cancel context.CancelFunc
	done   chan struct{}
	ended  atomic.Bool
}

type Daemon struct {
	mu sync.Mutex // serializes toggles and shutdown

	deps     Deps
	pipeline *pipeline.Pipeline
	notifier notify.Notifier
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	trip *activeTrip
}

func New(deps Deps) *Daemon {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		deps:     deps,
		pipeline: deps.Pipeline,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Shutdown asks Run to return.
func (d *Daemon) Shutdown() {
	d.cancel()
}

func (d *Daemon) Run() error {
	if err := bus.CheckPidFile(d.deps.PidPath); err != nil {
		return err
	}

	ln, err := bus.ListenAt(d.deps.SockPath)
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.WritePidFile(d.deps.PidPath); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer os.Remove(d.deps.PidPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	g, ctx := errgroup.WithContext(d.ctx)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			d.logger.Infof("Daemon: received signal %v, shutting down gracefully", sig)
			d.cancel()
		case <-ctx.Done():
		}
		return nil
	})

	// Close the listener when context is done
	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		return nil
	})

	if d.deps.MetricsAddr != "" {
		g.Go(func() error {
			if err := d.deps.Metrics.Serve(ctx, d.deps.MetricsAddr, d.logger); err != nil {
				d.logger.Errorf("Daemon: metrics endpoint stopped: %v", err)
			}
			return nil
		})
	}

	if d.deps.Manager != nil {
		if err := d.deps.Manager.StartWatching(ctx); err != nil {
			d.logger.Warnf("Daemon: config hot reload disabled: %v", err)
		} else {
			defer d.deps.Manager.Stop()
		}
	}

	g.Go(func() error { return d.acceptLoop(ctx, ln) })

	d.logger.Infof("Daemon: started, listening on %s", d.deps.SockPath)
	err = g.Wait()

	d.mu.Lock()
	d.endTripLocked()
	d.mu.Unlock()
	d.logger.Infof("Daemon: stopped")
	return err
}

func (d *Daemon) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))

	cmd, arg, err := bus.ReadRequest(bufio.NewReader(c))
	if err != nil {
		d.logger.Warnf("Daemon: client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}

	switch cmd {
	case bus.CmdToggle:
		fmt.Fprintln(c, d.toggle())
	case bus.CmdStatus:
		fmt.Fprintln(c, d.status())
	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s version=%s\n", bus.ProtoVer, d.deps.Version)
	case bus.CmdQueue:
		s := d.pipeline.Snapshot()
		fmt.Fprintf(c, "QUEUE pending=%d processing=%d failed=%d total=%d\n", s.Pending, s.Processing, s.Failed, s.Total())
	case bus.CmdRetry:
		if arg != "" {
			fmt.Fprintln(c, d.retryChunk(arg))
			return
		}
		n := d.pipeline.RetryFailed()
		if n > 0 {
			d.notifier.Send(notify.MsgQueueRetried, n)
		}
		fmt.Fprintf(c, "OK requeued=%d\n", n)
	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		d.logger.Warnf("Daemon: unknown command %q", cmd)
		fmt.Fprintf(c, "ERR unknown=%q\n", cmd)
	}
}

func (d *Daemon) retryChunk(id string) string {
	if !d.pipeline.RetryChunk(id) {
		return fmt.Sprintf("ERR no failed chunk id=%s", id)
	}
	d.notifier.Send(notify.MsgQueueRetried, 1)
	return "OK requeued=1"
}

func (d *Daemon) status() string {
	line := fmt.Sprintf("STATUS status=%s", d.pipeline.Status())
	if trip, ok := d.pipeline.CurrentTrip(); ok {
		line += fmt.Sprintf(" trip=%s engine=%s", trip.ID, d.pipeline.ActiveEngine())
	}
	s := d.pipeline.Snapshot()
	return line + fmt.Sprintf(" pending=%d failed=%d", s.Pending, s.Failed)
}

// toggle starts a trip when idle and stops it otherwise, returning the reply line.
func (d *Daemon) toggle() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pipeline.Status() == pipeline.Idle {
		return d.startTripLocked()
	}
	d.endTripLocked()
	return "OK trip stopped"
}

func (d *Daemon) startTripLocked() string {
	// a trip that ended on its own may still be finishing
	if d.trip != nil {
		<-d.trip.done
		d.trip = nil
	}

	if err := d.pipeline.Start(d.ctx, pipeline.Trip{}); err != nil {
		d.logger.Errorf("Daemon: failed to start trip: %v", err)
		d.notifier.Error(fmt.Sprintf("Failed to start trip: %v", err))
		return fmt.Sprintf("ERR start: %v", err)
	}

	source := d.deps.NewSource()
	captureCtx, cancel := context.WithCancel(d.ctx)
	frames, errs, err := source.Start(captureCtx)
	if err != nil {
		cancel()
		d.pipeline.Deactivate()
		d.logger.Errorf("Daemon: failed to start capture: %v", err)
		d.notifier.Error(fmt.Sprintf("Failed to start recording: %v", err))
		return fmt.Sprintf("ERR capture: %v", err)
	}

	t := &activeTrip{source: source, cancel: cancel, done: make(chan struct{})}
	d.trip = t
	go d.capture(captureCtx, t, frames, errs)

	trip, _ := d.pipeline.CurrentTrip()
	d.notifier.TripChanged(true)
	if active := d.pipeline.ActiveEngine(); active != d.pipeline.Selection().Engine {
		d.notifier.Send(notify.MsgEngineFallback, active)
	}
	return fmt.Sprintf("OK trip started id=%s", trip.ID)
}

func (d *Daemon) capture(ctx context.Context, t *activeTrip, frames <-chan recording.AudioFrame, errs <-chan error) {
	defer close(t.done)

	go func() {
		for err := range errs {
			d.logger.Errorf("Daemon: capture error: %v", err)
			d.notifier.Error(fmt.Sprintf("Recording error: %v", err))
		}
	}()

	d.pipeline.Run(ctx, frames)

	// shutdown ends the trip through endTripLocked
	if ctx.Err() != nil {
		return
	}
	if t.ended.CompareAndSwap(false, true) {
		d.logger.Warnf("Daemon: capture ended, deactivating trip")
		d.pipeline.Deactivate()
		t.cancel()
		d.notifier.TripChanged(false)
	}
}

// endTripLocked stops capture, waits for the ingestion task to submit the buffered
// frames and then stops the pipeline, which flushes and drains the queue.
func (d *Daemon) endTripLocked() {
	t := d.trip
	if t == nil {
		return
	}
	d.trip = nil

	if !t.ended.CompareAndSwap(false, true) {
		<-t.done
		return
	}

	if err := t.source.Stop(); err != nil {
		d.logger.Warnf("Daemon: stopping capture: %v", err)
	}
	t.source.Wait()
	<-t.done
	t.cancel()

	if err := d.pipeline.Stop(); err != nil && !errors.Is(err, pipeline.ErrNotRunning) {
		d.logger.Warnf("Daemon: stopping pipeline: %v", err)
	}
	d.notifier.TripChanged(false)
}
