package stdio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tkingovr/spawnguard/api"
	"github.com/tkingovr/spawnguard/internal/audit"
	"github.com/tkingovr/spawnguard/internal/filter"
	"github.com/tkingovr/spawnguard/internal/spawn"
)

// ErrDenied is returned by Run when the gate refuses a launch.
var ErrDenied = errors.New("launch denied")

const (
	defaultKillGrace  = 5 * time.Second
	defaultReadBuffer = 8192
)

// Options configures a Proxy. Zero values take defaults.
type Options struct {
	// Stdin feeds the child; nil means os.Stdin.
	Stdin io.Reader
	// Stdout receives the child's merged output; nil means os.Stdout.
	Stdout io.Writer
	// KillGrace is how long a cancelled child gets between SIGTERM and SIGKILL.
	KillGrace time.Duration
	// ReadBuffer is the size of each read from the child.
	ReadBuffer int
}

// Proxy gates a launch, then drives the child from its own stdio: input is
// copied to the child until EOF, output is copied back as raw chunks.
//
// One goroutine per Proxy reads Stdin for the Proxy's whole life and hands
// each chunk to whichever child is running. Input that arrives after a child
// has exited goes to the next Run, and at EOF every later child gets an
// empty stdin.
type Proxy struct {
	logger *slog.Logger
	chain  *filter.Chain
	store  audit.Store
	opts   Options

	inputOnce sync.Once
	input     chan []byte
}

// NewProxy creates a new stdio proxy with the given launch chain. store
// receives launch, exit and error records; it may be nil.
func NewProxy(logger *slog.Logger, chain *filter.Chain, store audit.Store, opts Options) *Proxy {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = defaultKillGrace
	}
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = defaultReadBuffer
	}
	return &Proxy{
		logger: logger,
		chain:  chain,
		store:  store,
		opts:   opts,
		input:  make(chan []byte),
	}
}

type waitResult struct {
	status spawn.ExitStatus
	err    error
}

// Run gates req, launches it and bridges stdio until the child exits. If ctx
// is cancelled first the child is terminated, and killed after the grace
// period. The returned status is the child's.
func (p *Proxy) Run(ctx context.Context, req spawn.Request) (spawn.ExitStatus, error) {
	fc := filter.NewFilterContext(req)
	if err := p.chain.Process(ctx, fc); err != nil {
		return spawn.ExitStatus{}, fmt.Errorf("gating launch: %w", err)
	}

	switch fc.Verdict {
	case api.VerdictAllow:
	case api.VerdictLog:
		p.logger.Info("launch logged",
			"command", fc.Command,
			"args", fc.Args,
			"rule", fc.MatchedRule,
			"message", fc.VerdictMessage,
		)
	default:
		p.logger.Warn("launch denied",
			"command", fc.Command,
			"rule", fc.MatchedRule,
			"message", fc.VerdictMessage,
		)
		return spawn.ExitStatus{}, fmt.Errorf("%w by %s: %s", ErrDenied, fc.MatchedRule, fc.VerdictMessage)
	}

	proc, err := spawn.Start(req)
	if err != nil {
		record := fc.ToAuditRecord(api.EventError)
		record.Message = err.Error()
		p.record(ctx, record)
		return spawn.ExitStatus{}, fmt.Errorf("launching %q: %w", req.Command, err)
	}

	started := time.Now()
	launch := fc.ToAuditRecord(api.EventLaunch)
	launch.PID = proc.PID()
	p.record(ctx, launch)
	p.logger.Debug("child started", "pid", proc.PID(), "command", req.Command)

	// Each copier owns one of the child's descriptors and closes it when it
	// is done, so no descriptor is closed under a blocked read or write.
	done := make(chan struct{})
	inDone := make(chan struct{})
	go func() {
		p.pipeInbound(proc, done)
		close(inDone)
	}()

	outDone := make(chan error, 1)
	go func() {
		err := p.pipeOutbound(proc)
		_ = proc.CloseStdout()
		outDone <- err
	}()

	waitDone := make(chan waitResult, 1)
	go func() {
		status, err := proc.Wait()
		waitDone <- waitResult{status, err}
	}()

	var res waitResult
	select {
	case res = <-waitDone:
	case <-ctx.Done():
		res = p.stop(proc, waitDone)
	}

	// Output may still be buffered in the pipe after the child exits. A
	// descendant holding the pipe open is given the grace period, no more;
	// the copier then closes the pipe once the descendant lets go.
	drain := time.NewTimer(p.opts.KillGrace)
	defer drain.Stop()
	select {
	case err := <-outDone:
		if err != nil {
			p.logger.Warn("copying child output", "pid", proc.PID(), "error", err)
		}
	case <-drain.C:
		p.logger.Warn("child output still open after exit", "pid", proc.PID())
	}

	// Release the child's stdin even if our own input has not ended.
	close(done)
	release := time.NewTimer(p.opts.KillGrace)
	defer release.Stop()
	select {
	case <-inDone:
	case <-release.C:
		p.logger.Warn("child input still blocked after exit", "pid", proc.PID())
	}

	if res.err != nil {
		return spawn.ExitStatus{}, res.err
	}

	exit := fc.ToAuditRecord(api.EventExit)
	exit.PID = proc.PID()
	exit.Duration = time.Since(started)
	switch res.status.Kind {
	case spawn.KindExited:
		code := res.status.Status
		exit.ExitCode = &code
	case spawn.KindSignaled:
		exit.Signal = res.status.Signal.String()
	}
	p.record(context.WithoutCancel(ctx), exit)
	p.logger.Debug("child exited", "pid", proc.PID(), "status", res.status.String())

	return res.status, nil
}

// stop asks the child to terminate and kills it if it is still running after
// the grace period.
func (p *Proxy) stop(proc *spawn.Process, waitDone <-chan waitResult) waitResult {
	p.logger.Info("terminating child", "pid", proc.PID())
	if err := proc.Terminate(); err != nil && !errors.Is(err, spawn.ErrProcessDone) {
		p.logger.Warn("sending SIGTERM", "pid", proc.PID(), "error", err)
	}

	timer := time.NewTimer(p.opts.KillGrace)
	defer timer.Stop()

	select {
	case res := <-waitDone:
		return res
	case <-timer.C:
		p.logger.Warn("child ignored SIGTERM, killing", "pid", proc.PID(), "grace", p.opts.KillGrace)
		if err := proc.Kill(); err != nil && !errors.Is(err, spawn.ErrProcessDone) {
			p.logger.Warn("sending SIGKILL", "pid", proc.PID(), "error", err)
		}
		return <-waitDone
	}
}

// readInput copies Stdin into p.input, one fresh chunk per read, and closes
// p.input at EOF or on a read error.
func (p *Proxy) readInput() {
	defer close(p.input)
	for {
		buf := make([]byte, p.opts.ReadBuffer)
		n, err := p.opts.Stdin.Read(buf)
		if n > 0 {
			p.input <- buf[:n]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Warn("reading stdin", "error", err)
			}
			return
		}
	}
}

// pipeInbound feeds input chunks to the child until our input ends, the child
// stops reading or done is closed, then closes the child's stdin.
func (p *Proxy) pipeInbound(proc *spawn.Process, done <-chan struct{}) {
	defer func() {
		_ = proc.CloseStdin()
	}()
	p.inputOnce.Do(func() { go p.readInput() })

	for {
		select {
		case chunk, ok := <-p.input:
			if !ok {
				return
			}
			// A child that exits early makes this fail with EPIPE; that is
			// not reported.
			if _, err := proc.Write(chunk); err != nil {
				p.logger.Debug("writing to child", "pid", proc.PID(), "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

// pipeOutbound copies the child's output to our stdout in raw chunks until
// every writer of the pipe has gone.
func (p *Proxy) pipeOutbound(proc *spawn.Process) error {
	buf := make([]byte, p.opts.ReadBuffer)
	for {
		n, err := proc.Read(buf)
		if n > 0 {
			if _, werr := p.opts.Stdout.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing to stdout: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading from child: %w", err)
		}
	}
}

func (p *Proxy) record(ctx context.Context, record *api.AuditRecord) {
	if p.store == nil {
		return
	}
	if err := p.store.Write(ctx, record); err != nil {
		p.logger.Error("writing audit record", "event", record.Event, "error", err)
	}
}
