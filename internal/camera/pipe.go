package camera

import (
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// stderrLimit bounds how much consumer stderr is retained for diagnostics.
const stderrLimit = 8 * 1024

// Pipe chains a remote capture process (producer) into a local packaging
// process (consumer): the producer's stdout feeds the consumer's stdin
// directly. The two processes share one lifecycle; the consumer's exit
// defines the pipeline's exit.
type Pipe struct {
	producer *exec.Cmd
	consumer *exec.Cmd
	started  time.Time

	stderr         boundedBuffer
	producerStderr boundedBuffer

	// done is closed when the consumer exits.
	done chan struct{}
	stop sync.Once
}

// StartPipe wires producer stdout to consumer stdin through an OS pipe and
// starts both. The parent's copies of the pipe ends are closed once both
// sides have started; without this the consumer would never see end-of-input
// when the producer finishes. If either side fails to spawn, anything
// already started is killed and a LaunchError is returned.
func StartPipe(producer, consumer *exec.Cmd) (*Pipe, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	producer.Stdout = pw
	consumer.Stdin = pr

	p := &Pipe{
		producer: producer,
		consumer: consumer,
		done:     make(chan struct{}),
	}
	consumer.Stderr = &p.stderr
	producer.Stderr = &p.producerStderr

	if err := producer.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, &LaunchError{Stage: "remote", Err: err}
	}
	if err := consumer.Start(); err != nil {
		pr.Close()
		pw.Close()
		_ = producer.Process.Kill()
		go func() { _ = producer.Wait() }()
		return nil, &LaunchError{Stage: "local", Err: err}
	}

	// Both children now hold their own copies of the pipe ends.
	pw.Close()
	pr.Close()

	p.started = time.Now()

	go func() { _ = producer.Wait() }()
	go func() {
		_ = consumer.Wait()
		close(p.done)
	}()

	return p, nil
}

// Alive reports whether the consumer process is still running. The producer's
// liveness is not independently surfaced: the consumer is the pipeline's
// visible endpoint.
func (p *Pipe) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the pipeline has exited.
func (p *Pipe) Done() <-chan struct{} {
	return p.done
}

// StartedAt returns when the pipeline was started.
func (p *Pipe) StartedAt() time.Time {
	return p.started
}

// Stderr returns the captured diagnostic output of both sides, consumer
// first. A transport failure on the producer (a refused ssh connection, say)
// would otherwise surface as a bare EOF on the consumer.
func (p *Pipe) Stderr() string {
	out := strings.TrimSpace(p.stderr.String())
	if prod := strings.TrimSpace(p.producerStderr.String()); prod != "" {
		if out != "" {
			out += "\n"
		}
		out += prod
	}
	return out
}

// Stop terminates the pipeline: SIGTERM to the consumer then the producer
// (killing the producer first could leave the consumer blocked on an
// orphaned pipe), a bounded wait for graceful exit, then SIGKILL for
// anything still alive. Stopping an already-finished pipeline is not an
// error; the return value reports whether force was needed.
func (p *Pipe) Stop(grace time.Duration) (forced bool) {
	p.stop.Do(func() {
		p.signal(syscall.SIGTERM)
		select {
		case <-p.done:
		case <-time.After(grace):
			forced = true
			p.signal(syscall.SIGKILL)
			<-p.done
		}
	})
	return forced
}

// signal delivers sig to the consumer then the producer, ignoring failures
// from processes that have already exited.
func (p *Pipe) signal(sig syscall.Signal) {
	if p.consumer.Process != nil {
		_ = p.consumer.Process.Signal(sig)
	}
	if p.producer.Process != nil {
		_ = p.producer.Process.Signal(sig)
	}
}

// boundedBuffer retains the first stderrLimit bytes written and discards the
// rest, so a chatty tool cannot grow memory unbounded.
type boundedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := stderrLimit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
