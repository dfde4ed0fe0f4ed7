package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AudioFrame is one read of mono 16-bit little-endian PCM from the capture device.
// Seq increases by one per delivered frame, starting at 1 for every recording session.
type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
	Seq       uint64
}

type Config struct {
	SampleRate        int
	Channels          int
	Format            string
	BufferSize        int
	Device            string
	ChannelBufferSize int
}

// DefaultConfig captures 48 kHz mono s16 in 100 ms reads.
func DefaultConfig() Config {
	return Config{
		SampleRate:        48000,
		Channels:          1,
		Format:            "s16",
		BufferSize:        9600,
		Device:            "",
		ChannelBufferSize: 50,
	}
}

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

type Recorder struct {
	config    Config
	logger    *zap.SugaredLogger
	recording atomic.Bool

	mu     sync.Mutex // guards cmd and cancel
	cmd    *exec.Cmd
	cancel context.CancelFunc

	wg sync.WaitGroup

	command commandFunc
	check   func(ctx context.Context) error
	dropped atomic.Uint64
}

func NewRecorder(config Config, logger *zap.SugaredLogger) *Recorder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Recorder{
		config:  config,
		logger:  logger,
		command: exec.CommandContext,
		check:   CheckPipeWireAvailable,
	}
}

func (r *Recorder) Config() Config {
	return r.config
}

func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// Dropped returns how many frames were discarded because the consumer fell behind.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Start launches pw-record. The frame channel is closed when capture ends; the error
// channel carries at most one error.
func (r *Recorder) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	if r.recording.Load() {
		return nil, nil, fmt.Errorf("already recording")
	}

	if err := r.validateConfig(); err != nil {
		return nil, nil, err
	}

	if err := r.check(ctx); err != nil {
		return nil, nil, fmt.Errorf("PipeWire not available: %w", err)
	}

	captureCtx, cancel := context.WithCancel(ctx)

	frameCh := make(chan AudioFrame, r.config.ChannelBufferSize)
	errCh := make(chan error, 1)

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.dropped.Store(0)
	r.recording.Store(true)
	r.wg.Add(1)
	go r.captureLoop(captureCtx, frameCh, errCh)

	r.logger.Infof("Recording: started %d Hz %d ch device=%q", r.config.SampleRate, r.config.Channels, r.config.Device)
	return frameCh, errCh, nil
}

func (r *Recorder) Stop() error {
	if !r.recording.Load() {
		return nil
	}
	r.requestCancel()
	return nil
}

// Wait blocks until the capture goroutine has exited.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) captureLoop(ctx context.Context, frameCh chan<- AudioFrame, errCh chan<- error) {
	defer func() {
		close(frameCh)
		close(errCh)
		r.recording.Store(false)

		r.mu.Lock()
		if r.cmd != nil {
			_ = r.cmd.Wait()
			r.cmd = nil
		}
		r.cancel = nil
		r.mu.Unlock()

		r.wg.Done()
	}()

	cmd := r.command(ctx, "pw-record", r.buildPwRecordArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stdout pipe: %w", err))
		return
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stderr pipe: %w", err))
		return
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	if err := cmd.Start(); err != nil {
		r.mu.Lock()
		r.cmd = nil
		r.mu.Unlock()
		r.emitErr(errCh, fmt.Errorf("start pw-record: %w", err))
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			r.logger.Debugf("Recording stderr: %s", scanner.Text())
		}
	}()

	reader := bufio.NewReaderSize(stdout, r.config.BufferSize)
	frameBytes := 2 * r.config.Channels
	var seq uint64
	var dropped uint64
	lastDropLog := time.Now()

	for {
		buffer := make([]byte, r.config.BufferSize)
		n, readErr := io.ReadFull(reader, buffer)
		// keep whole sample frames only
		n -= n % frameBytes
		if n > 0 {
			seq++
			frame := AudioFrame{Data: buffer[:n], Timestamp: time.Now(), Seq: seq}

			select {
			case frameCh <- frame:
			case <-ctx.Done():
				return
			default:
				dropped++
				r.dropped.Add(1)
				if time.Since(lastDropLog) > time.Second {
					r.logger.Warnf("Recording: dropped %d frames due to backpressure", dropped)
					lastDropLog = time.Now()
					dropped = 0
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) || ctx.Err() != nil {
				return
			}
			r.emitErr(errCh, fmt.Errorf("read audio: %w", readErr))
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (r *Recorder) requestCancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Recorder) emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
	r.logger.Errorf("Recording error: %v", err)
}

func (r *Recorder) buildPwRecordArgs() []string {
	args := []string{
		"--format", r.config.Format,
		"--rate", strconv.Itoa(r.config.SampleRate),
		"--channels", strconv.Itoa(r.config.Channels),
	}
	if r.config.Device != "" {
		args = append(args, "--target", r.config.Device)
	}
	return append(args, "-")
}

func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(checkCtx, "pw-cli", "info")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}

func (r *Recorder) validateConfig() error {
	if r.config.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", r.config.SampleRate)
	}
	if r.config.Channels != 1 {
		return fmt.Errorf("invalid Channels: %d (only mono is supported)", r.config.Channels)
	}
	if r.config.BufferSize <= 0 || r.config.BufferSize%2 != 0 {
		return fmt.Errorf("invalid BufferSize: %d (must be a positive even number)", r.config.BufferSize)
	}
	if r.config.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", r.config.ChannelBufferSize)
	}
	if r.config.Format != "s16" && r.config.Format != "s16le" {
		return fmt.Errorf("invalid Format: %q (expected s16)", r.config.Format)
	}
	return nil
}
