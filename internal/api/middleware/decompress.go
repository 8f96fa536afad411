package middleware

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Decompress transparently decodes gzip and zstd request bodies. Register it
// before BodyLimit so the limit applies to the decoded size.
func Decompress() gin.HandlerFunc {
	return func(c *gin.Context) {
		encoding := strings.ToLower(strings.TrimSpace(c.GetHeader("Content-Encoding")))
		if encoding == "" || encoding == "identity" || c.Request.Body == nil {
			c.Next()
			return
		}

		var (
			body io.ReadCloser
			err  error
		)
		switch encoding {
		case "gzip":
			body, err = gzip.NewReader(c.Request.Body)
		case "zstd":
			var dec *zstd.Decoder
			dec, err = zstd.NewReader(c.Request.Body)
			if err == nil {
				body = dec.IOReadCloser()
			}
		default:
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "unsupported content encoding: " + encoding,
			})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "malformed " + encoding + " body",
			})
			return
		}
		defer body.Close()

		c.Request.Body = body
		c.Request.ContentLength = -1
		c.Request.Header.Del("Content-Encoding")
		c.Request.Header.Del("Content-Length")
		c.Next()
	}
}
