package http

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
)

var jsonContentType = []string{"application/json; charset=utf-8"}

// sonicJSON renders a response body with sonic
type sonicJSON struct {
	data interface{}
}

func (r sonicJSON) Render(w http.ResponseWriter) error {
	r.WriteContentType(w)
	data, err := sonic.Marshal(r.data)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (r sonicJSON) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = jsonContentType
	}
}

// respond writes data as JSON
func respond(c *gin.Context, status int, data interface{}) {
	c.Render(status, sonicJSON{data: data})
}

// fail writes an error body and aborts the chain
func fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.Abort()
	respond(c, status, gin.H{"error": err.Error()})
}

// bindJSON decodes the request body into v, rejecting unknown fields
func bindJSON(c *gin.Context, v interface{}) error {
	dec := sonic.ConfigDefault.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
