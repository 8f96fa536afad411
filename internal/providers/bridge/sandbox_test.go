package bridge

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/membrane/internal/sandbox"
)

func TestGuestReachesEndpoint(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/call/greet":
			writeJSON(w, http.StatusOK, map[string]interface{}{"result": map[string]interface{}{"text": "hi"}})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	config := sandbox.DefaultConfig()
	config.Bridge = client
	rt, err := sandbox.New(config)
	require.NoError(t, err)
	defer rt.Close()

	result, err := rt.Execute(context.Background(), `
		bridge.emit('started', { n: 1 });
		bridge.call('greet').text
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Value)
}
