package offload

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qrv0/gemmcheck/internal/matrix"
	"github.com/qrv0/gemmcheck/internal/reference"
)

// recorder is a FaultHandler that keeps what it was given.
type recorder struct {
	mu     sync.Mutex
	faults []*Fault
}

func (r *recorder) handle(faults []*Fault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, faults...)
}

// brokenDevice fails to open.
type brokenDevice struct{ Host }

func (*brokenDevice) Name() string { return "broken" }

func (*brokenDevice) Open() (Device, error) {
	return Device{}, &Fault{Status: StatusInvalidDevice, Op: "open", Message: "device lost"}
}

func TestQueueDeliversAsyncFaultsAtWait(t *testing.T) {
	var rec recorder
	q, err := NewQueue(&Host{}, rec.handle)
	require.NoError(t, err)
	require.NoError(t, q.Submit(func() error { return errors.New("kernel exploded") }))
	require.NoError(t, q.Submit(func() error { panic("bad index") }))
	require.NoError(t, q.Submit(func() error {
		return &Fault{Status: StatusOutOfResources, Op: "gemm", Message: "oom"}
	}))
	q.Wait()
	require.Len(t, rec.faults, 3)
	for _, f := range rec.faults {
		require.True(t, f.Async)
	}
	require.Contains(t, rec.faults[0].Message, "kernel exploded")
	require.Contains(t, rec.faults[1].Message, "panic: bad index")
	require.Equal(t, StatusOutOfResources, rec.faults[2].Status)
	require.Equal(t, 3, q.Delivered())

	require.NoError(t, q.Close())
	require.ErrorIs(t, q.Submit(func() error { return nil }), ErrQueueClosed)
	require.NoError(t, q.Close())
}

func TestQueueRunsInOrder(t *testing.T) {
	q, err := NewQueue(&Host{}, nil)
	require.NoError(t, err)
	var got []int
	for i := 0; i < 50; i++ {
		require.NoError(t, q.Submit(func() error { got = append(got, i); return nil }))
	}
	require.NoError(t, q.Close())
	require.Len(t, got, 50)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestQueueNilHandlerPanics(t *testing.T) {
	q, err := NewQueue(&Host{}, nil)
	require.NoError(t, err)
	require.NoError(t, q.Submit(func() error { return errors.New("boom") }))
	require.Panics(t, q.Wait)
}

func TestBufferWriteBackOnRelease(t *testing.T) {
	q, err := NewQueue(&Host{}, nil)
	require.NoError(t, err)
	defer q.Close()

	ro := []float64{1, 2}
	rw := []float64{3, 4}
	rob := NewBuffer(q, ro, ReadOnly)
	rwb := NewBuffer(q, rw, ReadWrite)
	require.NoError(t, q.Submit(func() error {
		rob.Data()[0] = 100
		rwb.Data()[1] = 400
		return nil
	}))
	q.Wait()
	// nothing reaches the host before release
	require.Equal(t, []float64{3, 4}, rw)

	rob.Release()
	rwb.Release()
	rwb.Release()
	require.Equal(t, []float64{1, 2}, ro)
	require.Equal(t, []float64{3, 400}, rw)
	require.Nil(t, rwb.Data())
}

func TestDispatchComputesProduct(t *testing.T) {
	for _, name := range []string{"host", "parallel"} {
		t.Run(name, func(t *testing.T) {
			d := matrix.Dims{M: 8, N: 16, P: 32}
			p, err := matrix.Generate(d)
			require.NoError(t, err)
			be, err := New(name)
			require.NoError(t, err)
			var out bytes.Buffer
			dev, err := (&Dispatcher{Backend: be, Out: &out}).Dispatch(p)
			require.NoError(t, err)
			require.Equal(t, name, dev.Backend)
			require.Contains(t, out.String(), "Device: "+dev.Name)

			want := reference.ClosedForm(d.N)
			for _, v := range p.C.Data {
				require.Equal(t, want, v)
			}
		})
	}
}

func TestDispatchSyncFault(t *testing.T) {
	p, err := matrix.Generate(matrix.Dims{M: 2, N: 3, P: 4})
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = (&Dispatcher{Backend: &Injector{Backend: &Host{}, Mode: InjectFault}, Out: &out}).Dispatch(p)
	require.Error(t, err)
	f, ok := AsFault(err)
	require.True(t, ok)
	require.Equal(t, StatusInvalidOperation, f.Status)
	require.Contains(t, out.String(), "Offload fault during GEMM")
	require.Contains(t, out.String(), "Status: -59")
	// C was released untouched
	for _, v := range p.C.Data {
		require.Zero(t, v)
	}
}

func TestDispatchAsyncFault(t *testing.T) {
	p, err := matrix.Generate(matrix.Dims{M: 2, N: 3, P: 4})
	require.NoError(t, err)
	var rec recorder
	_, err = (&Dispatcher{
		Backend: &Injector{Backend: &Host{}, Mode: InjectAsync},
		Handler: rec.handle,
	}).Dispatch(p)
	require.ErrorIs(t, err, ErrAsyncFault)
	require.Len(t, rec.faults, 1)
	require.Equal(t, "injected asynchronous fault", rec.faults[0].Message)
}

func TestDispatchCorrupt(t *testing.T) {
	d := matrix.Dims{M: 3, N: 4, P: 5}
	p, err := matrix.Generate(d)
	require.NoError(t, err)
	_, err = (&Dispatcher{Backend: &Injector{Backend: &Parallel{}, Mode: InjectCorrupt, Row: 2, Col: 3}}).Dispatch(p)
	require.NoError(t, err)
	want := reference.ClosedForm(d.N)
	for j := 0; j < d.P; j++ {
		for i := 0; i < d.M; i++ {
			v, _ := p.C.At(i, j)
			if i == 2 && j == 3 {
				require.Equal(t, want+1, v)
				continue
			}
			require.Equal(t, want, v)
		}
	}

	_, err = (&Dispatcher{Backend: &Injector{Backend: &Host{}, Mode: InjectCorrupt, Row: 9}}).Dispatch(p)
	f, ok := AsFault(err)
	require.True(t, ok)
	require.Equal(t, StatusInvalidValue, f.Status)
}

func TestDispatchOpenFailure(t *testing.T) {
	p, err := matrix.Generate(matrix.Dims{M: 1, N: 1, P: 1})
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = (&Dispatcher{Backend: &brokenDevice{}, Out: &out}).Dispatch(p)
	f, ok := AsFault(err)
	require.True(t, ok)
	require.Equal(t, StatusInvalidDevice, f.Status)
	require.Contains(t, err.Error(), "dispatch on broken")
	require.Contains(t, out.String(), "Status: -33")
	require.NotContains(t, out.String(), "Device:")
}

func TestParseInjection(t *testing.T) {
	for in, want := range map[string]Injection{"": InjectNone, "corrupt": InjectCorrupt, "FAULT": InjectFault, "async": InjectAsync} {
		got, err := ParseInjection(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseInjection("meteor")
	require.Error(t, err)
	require.Equal(t, "host+corrupt", (&Injector{Backend: &Host{}, Mode: InjectCorrupt}).Name())
}
