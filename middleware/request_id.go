// Package middleware contains any custom middleware used in the app
package middleware

import (
	"nanohost/storage-api/pkg/util"

	"github.com/gin-gonic/gin"
)

// NewRequestIDMiddleware returns a middleware that tags every request
// with a short random ID echoed back in error responses
func NewRequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("requestID", util.RandStr(10))
		c.Next()
	}
}
