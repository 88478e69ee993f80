package middlewares

import "github.com/gin-gonic/gin"

// Gin context keys shared across middlewares and handlers.
const (
	CtxRequestID = "ctx_request_id"
	CtxJobID     = "ctx_job_id"
	CtxTenantID  = "ctx_tenant_id"
)

// TenantIDFromContext returns the tenant attributed to the request, when the
// tenant header middleware has set one.
func TenantIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxTenantID)
	if !ok {
		return "", false
	}

	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// TenantHeader records the caller-declared tenant for rate limiting and logs.
func TenantHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader("X-Tenant-Id"); id != "" {
			c.Set(CtxTenantID, id)
		}
		c.Next()
	}
}
