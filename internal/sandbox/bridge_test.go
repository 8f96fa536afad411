package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBridge struct {
	mu     sync.Mutex
	calls  []string
	args   [][]interface{}
	events map[string]interface{}
	err    error
}

func (b *recordingBridge) Call(_ context.Context, method string, args ...interface{}) (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, method)
	b.args = append(b.args, args)
	if b.err != nil {
		return nil, b.err
	}
	var sum int64
	for _, arg := range args {
		if n, ok := arg.(int64); ok {
			sum += n
		}
	}
	return sum, nil
}

func (b *recordingBridge) Emit(_ context.Context, event string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.events == nil {
		b.events = make(map[string]interface{})
	}
	b.events[event] = data
	return nil
}

func TestBridgeCall(t *testing.T) {
	bridge := &recordingBridge{}
	config := DefaultConfig()
	config.Bridge = bridge
	rt := newRuntime(t, config)

	assert.EqualValues(t, 6, execute(t, rt, "bridge.call('sum', 1, 2, 3)").Value)
	execute(t, rt, "bridge.emit('ready', 'yes')")

	assert.Equal(t, []string{"sum"}, bridge.calls)
	assert.Equal(t, "yes", bridge.events["ready"])
}

func TestBridgeStructuredArguments(t *testing.T) {
	bridge := &recordingBridge{}
	config := DefaultConfig()
	config.Bridge = bridge
	config.HostScript = "var api = { label: 'host', nested: { level: 2 } }"
	config.Policy = &Policy{Globals: []string{"api"}}
	rt := newRuntime(t, config)

	execute(t, rt, `
		const cyclic = { name: 'loop' };
		cyclic.self = cyclic;
		bridge.emit('obj', { a: 1, nested: { b: 2 }, skip: () => 1 });
		bridge.emit('arr', [1, { c: 3 }, [4]]);
		bridge.emit('host', { api: api, tag: 'x' });
		bridge.emit('cyclic', cyclic);
		bridge.call('record', { id: 7 }, ['x']);
	`)

	assert.Equal(t, map[string]interface{}{
		"a":      int64(1),
		"nested": map[string]interface{}{"b": int64(2)},
		"skip":   nil,
	}, bridge.events["obj"])
	assert.Equal(t, []interface{}{
		int64(1),
		map[string]interface{}{"c": int64(3)},
		[]interface{}{int64(4)},
	}, bridge.events["arr"])
	assert.Equal(t, map[string]interface{}{
		"api": map[string]interface{}{
			"label":  "host",
			"nested": map[string]interface{}{"level": int64(2)},
		},
		"tag": "x",
	}, bridge.events["host"])
	assert.Equal(t, map[string]interface{}{"name": "loop", "self": nil}, bridge.events["cyclic"])

	require.Len(t, bridge.args, 1)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"id": int64(7)},
		[]interface{}{"x"},
	}, bridge.args[0])
}

func TestBridgeAbsentWithoutConfig(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	assert.Equal(t, "undefined", execute(t, rt, "typeof bridge").Value)
}

func TestBridgeFailuresTripBreaker(t *testing.T) {
	bridge := &recordingBridge{err: errors.New("host unavailable")}
	config := DefaultConfig()
	config.Bridge = bridge
	rt := newRuntime(t, config)

	res := execute(t, rt, `
		const messages = [];
		for (let i = 0; i < 8; i++) {
			try { bridge.call('ping') } catch (e) { messages.push(e.message) }
		}
		messages
	`)
	messages, ok := res.Value.([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 8)
	assert.Equal(t, "host unavailable", messages[0])
	assert.Equal(t, "circuit breaker is open", messages[7])

	// Calls stop reaching the host once the breaker is open.
	assert.Len(t, bridge.calls, 6)
}
