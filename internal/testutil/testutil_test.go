package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pcmcirun/internal/discovery"
)

func TestStepClock(t *testing.T) {
	c := NewStepClock(time.Time{}, time.Second)

	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch.Add(time.Second), c.Now())
	assert.Equal(t, 2, c.Readings())
}

func TestStepClock_Concurrent(t *testing.T) {
	c := NewStepClock(time.Time{}, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, c.Readings())
	assert.Equal(t, Epoch.Add(50*time.Millisecond), c.Now())
}

func TestScriptedDiscoverer_Playback(t *testing.T) {
	links := discovery.LinkDict{{}, {{Source: 0, Lag: 1}}}
	d := &ScriptedDiscoverer{Links: links}
	req := discovery.Request{Variables: []string{"a", "b"}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	got, err := d.Discover(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, links, got)
	assert.Equal(t, 1, d.Calls())

	last, hadDeadline := d.LastRequest()
	assert.Equal(t, req, last)
	assert.True(t, hadDeadline)
}

func TestScriptedDiscoverer_Err(t *testing.T) {
	boom := errors.New("boom")
	d := &ScriptedDiscoverer{Err: boom}

	_, err := d.Discover(context.Background(), discovery.Request{})
	assert.ErrorIs(t, err, boom)

	_, hadDeadline := d.LastRequest()
	assert.False(t, hadDeadline)
}

func TestScriptedDiscoverer_Panic(t *testing.T) {
	d := &ScriptedDiscoverer{Panic: "kaboom"}
	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = d.Discover(context.Background(), discovery.Request{})
	})
}

func TestScriptedDiscoverer_HangUntilCancel(t *testing.T) {
	d := &ScriptedDiscoverer{Hang: true}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := d.Discover(ctx, discovery.Request{})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("discoverer did not return after cancel")
	}
}

func TestScriptedDiscoverer_IgnoreCancel(t *testing.T) {
	d := &ScriptedDiscoverer{Hang: true, IgnoreCancel: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		_, _ = d.Discover(ctx, discovery.Request{})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("discoverer returned before Release")
	case <-time.After(20 * time.Millisecond):
	}

	d.Release()
	d.Release()
	<-done
}
