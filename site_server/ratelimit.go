package main

import (
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

const rateLimitWindow = time.Hour

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

// newRatePolicy builds one admission-check middleware with its own per-IP
// counter store. Each policy counts independently of the others.
func newRatePolicy(window time.Duration, limit uint, message string) gin.HandlerFunc {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  window,
		Limit: limit,
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.JSON(429, gin.H{"success": false, "message": message})
		},
		KeyFunc: keyFunc,
	})
}

// Contact form submissions, 5 per IP per hour.
func contactFormLimiter() gin.HandlerFunc {
	return newRatePolicy(rateLimitWindow, 5, "Too many contact requests. Please try again later.")
}

// Admin login attempts, 10 per IP per hour.
func adminLoginLimiter() gin.HandlerFunc {
	return newRatePolicy(rateLimitWindow, 10, "Too many login attempts. Please try again later.")
}

// Chatbot requests, 50 per IP per hour, shared by all chat routes.
func chatLimiter() gin.HandlerFunc {
	return newRatePolicy(rateLimitWindow, 50, "Too many chatbot requests. Please try again later.")
}
