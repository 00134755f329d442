package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_FireInOrder(t *testing.T) {
	var e Emitter[int]
	var got []string

	e.Subscribe(func(v int) { got = append(got, "a") })
	e.Subscribe(func(v int) { got = append(got, "b") })
	e.Fire(1)

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 2, e.Len())
}

func TestEmitter_UnsubscribeDuringFire(t *testing.T) {
	var e Emitter[int]
	calls := 0

	var sub Disposable
	sub = e.Subscribe(func(int) {
		calls++
		sub.Dispose()
	})

	e.Fire(1)
	e.Fire(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, e.Len())
}

func TestEmitter_ReentrantFire(t *testing.T) {
	var e Emitter[int]
	var seen []int

	e.Subscribe(func(v int) {
		seen = append(seen, v)
		if v == 1 {
			e.Fire(2)
		}
	})
	e.Fire(1)

	assert.Equal(t, []int{1, 2}, seen)
}

func TestEmitter_Dispose(t *testing.T) {
	var e Emitter[string]
	fired := false
	e.Subscribe(func(string) { fired = true })

	e.Dispose()
	e.Fire("x")
	e.Subscribe(func(string) { fired = true }).Dispose()
	e.Fire("y")

	assert.False(t, fired)
	assert.True(t, e.IsDisposed())
	assert.Equal(t, 0, e.Len())
}

func TestDisposables_ReverseOrder(t *testing.T) {
	var ds Disposables
	var order []int
	ds.Add(DisposeFunc(func() { order = append(order, 1) }))
	ds.Add(nil)
	ds.Add(DisposeFunc(func() { order = append(order, 2) }))

	ds.Dispose()
	ds.Dispose()

	assert.Equal(t, []int{2, 1}, order)
}

func TestOnceDisposable(t *testing.T) {
	n := 0
	d := OnceDisposable(func() { n++ })
	d.Dispose()
	d.Dispose()
	assert.Equal(t, 1, n)
}
