package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes caps request bodies. Issuance payloads are a handful of uuids;
// anything near the cap is a client bug or abuse.
func MaxBodyBytes(max int64) gin.HandlerFunc {
	if max <= 0 {
		max = 1 << 20
	}

	return func(ctx *gin.Context) {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, max)

		ctx.Next()
	}
}
